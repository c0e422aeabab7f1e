package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/valyala/fasthttp"

	"datimsync/pkg/provider"
	"datimsync/pkg/script"
)

const (
	BulkImportPath = "/manage/bulkimport/"
)

// OCLBulkImporter submits import scripts to the OCL bulk import endpoint,
// one JSON document per line.
type OCLBulkImporter struct {
	Client *provider.Client
	// UpdateIfExists asks OCL to upsert lines without an explicit action.
	UpdateIfExists bool
}

func NewOCLBulkImporter(c *provider.Client) *OCLBulkImporter {
	return &OCLBulkImporter{Client: c}
}

func (b *OCLBulkImporter) Submit(ctx context.Context, muts []script.Mutation) (string, error) {
	var body bytes.Buffer
	if err := script.WriteLines(&body, muts); err != nil {
		return "", fmt.Errorf("encode import script: %w", err)
	}
	path := BulkImportPath
	if b.UpdateIfExists {
		path += "?update_if_exists=true"
	}
	status, resp, err := b.Client.Do(ctx, fasthttp.MethodPost, path, body.Bytes(), "application/json")
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", &provider.StatusError{Method: fasthttp.MethodPost, Path: path, Status: status, Body: string(resp)}
	}
	var out struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal(resp, &out); err != nil || out.Task == "" {
		return "", fmt.Errorf("bulk import: no task id in response %q", string(resp))
	}
	return out.Task, nil
}

// Poll asks for the task result. OCL answers 202 while the task is queued or
// running and the per line results once it is done.
func (b *OCLBulkImporter) Poll(ctx context.Context, taskID string) (*Status, error) {
	path := BulkImportPath + "?task=" + url.QueryEscape(taskID) + "&result=json"
	status, resp, err := b.Client.Do(ctx, fasthttp.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	st := &Status{TaskID: taskID}
	switch {
	case status == fasthttp.StatusAccepted:
		st.State = StatePending
		return st, nil
	case status == fasthttp.StatusOK:
	default:
		st.State = StateFailed
		st.Items = []Item{{Status: status, Message: string(resp)}}
		return st, nil
	}

	var res struct {
		State string `json:"state"`
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(resp, &res); err != nil {
		return nil, fmt.Errorf("bulk import task %s: decode result: %w", taskID, err)
	}
	switch res.State {
	case "PENDING", "STARTED", "RECEIVED":
		st.State = StatePending
	case "FAILURE":
		st.State = StateFailed
	default:
		st.State = StateComplete
	}
	st.Items = res.Items
	return st, nil
}
