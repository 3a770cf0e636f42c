package api

import (
	"time"

	"github.com/samcharles93/ggufedit/internal/editor"
)

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type FileSummary struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type FileList struct {
	Object string        `json:"object"`
	Data   []FileSummary `json:"data"`
}

type ValidateResponse struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Stage string `json:"stage,omitempty"`
}

type ChangeSummary struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Old      string `json:"old,omitempty"`
	New      string `json:"new"`
	Inserted bool   `json:"inserted,omitempty"`
	// SizeDelta is the change in encoded bytes of the entry.
	SizeDelta int64 `json:"size_delta"`
}

type UpdateResponse struct {
	Name    string          `json:"name"`
	DryRun  bool            `json:"dry_run"`
	Plan    *editor.Plan    `json:"plan"`
	Changes []ChangeSummary `json:"changes"`
	Backup  string          `json:"backup,omitempty"`
}
