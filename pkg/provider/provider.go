package provider

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"datimsync/pkg/dhis2"
	"datimsync/pkg/ocl"
)

// DHIS2Provider returns the raw body of a DHIS2 query.
type DHIS2Provider interface {
	Fetch(ctx context.Context, q dhis2.Query, datasetIDs []string) ([]byte, error)
}

// OCLProvider returns the raw body of an OCL endpoint.
type OCLProvider interface {
	Fetch(ctx context.Context, endpoint string) ([]byte, error)
}

// DHIS2 queries a DHIS2 instance with basic auth.
type DHIS2 struct {
	Client *Client
}

func NewDHIS2(baseURL, user, pass string, timeout time.Duration) *DHIS2 {
	return &DHIS2{Client: NewClient(baseURL, map[string]string{"Authorization": BasicAuth(user, pass)}, timeout)}
}

func (d *DHIS2) Fetch(ctx context.Context, q dhis2.Query, datasetIDs []string) ([]byte, error) {
	return d.Client.Get(ctx, dhis2.BuildQueryPath(q.Path, datasetIDs))
}

// OCL reads from the OCL API with a token.
type OCL struct {
	Client *Client
}

func NewOCL(baseURL, token string, timeout time.Duration) *OCL {
	h := map[string]string{}
	if token != "" {
		h["Authorization"] = TokenAuth(token)
	}
	return &OCL{Client: NewClient(baseURL, h, timeout)}
}

func (o *OCL) Fetch(ctx context.Context, endpoint string) ([]byte, error) {
	return o.Client.Get(ctx, endpoint)
}

// DHIS2Filename is the cache file name for a DHIS2 query export.
func DHIS2Filename(queryID string) string {
	return "dhis2-" + queryID + "-export.json"
}

// OCLFilename is the cache file name for an OCL endpoint export.
func OCLFilename(endpoint string) string {
	return ocl.EndpointFilename(endpoint, "-raw.json")
}

// Files serves exports saved by a previous online run. It implements both
// provider interfaces.
type Files struct {
	Dir string
}

func (f *Files) FetchDHIS2(_ context.Context, q dhis2.Query) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.Dir, DHIS2Filename(q.ID)))
}

func (f *Files) Fetch(_ context.Context, endpoint string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.Dir, OCLFilename(endpoint)))
}

// DHIS2 adapts f to DHIS2Provider.
func (f *Files) DHIS2() DHIS2Provider { return offlineDHIS2{f} }

type offlineDHIS2 struct{ f *Files }

func (o offlineDHIS2) Fetch(ctx context.Context, q dhis2.Query, _ []string) ([]byte, error) {
	return o.f.FetchDHIS2(ctx, q)
}

// RecordingDHIS2 saves every successful response under Dir so a later
// offline run can replay it.
type RecordingDHIS2 struct {
	Next DHIS2Provider
	Dir  string
}

func (r *RecordingDHIS2) Fetch(ctx context.Context, q dhis2.Query, datasetIDs []string) ([]byte, error) {
	b, err := r.Next.Fetch(ctx, q, datasetIDs)
	if err != nil {
		return nil, err
	}
	return b, writeFile(filepath.Join(r.Dir, DHIS2Filename(q.ID)), b)
}

type RecordingOCL struct {
	Next OCLProvider
	Dir  string
}

func (r *RecordingOCL) Fetch(ctx context.Context, endpoint string) ([]byte, error) {
	b, err := r.Next.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return b, writeFile(filepath.Join(r.Dir, OCLFilename(endpoint)), b)
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
