package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const driveBaseURL = "https://www.googleapis.com"

// DrivePersister keeps the state blob as a file in the Drive appDataFolder of the
// account behind the OAuth token.
type DrivePersister struct {
	hc       *http.Client
	baseURL  string
	fileName string

	mu     sync.Mutex
	fileID string
}

// NewDrivePersister names the appData file after key ("deliblab/app-state" becomes
// "deliblab-app-state.json"). An empty baseURL selects the public endpoint.
func NewDrivePersister(hc *http.Client, baseURL, key string) *DrivePersister {
	if baseURL == "" {
		baseURL = driveBaseURL
	}
	return &DrivePersister{
		hc:       hc,
		baseURL:  strings.TrimRight(baseURL, "/"),
		fileName: strings.ReplaceAll(key, "/", "-") + ".json",
	}
}

type driveFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (d *DrivePersister) lookup(ctx context.Context) (string, error) {
	d.mu.Lock()
	id := d.fileID
	d.mu.Unlock()
	if id != "" {
		return id, nil
	}
	q := url.Values{}
	q.Set("spaces", "appDataFolder")
	q.Set("q", fmt.Sprintf("name = '%s' and trashed = false", d.fileName))
	q.Set("fields", "files(id,name)")
	b, err := do(ctx, d.hc, http.MethodGet, d.baseURL+"/drive/v3/files?"+q.Encode(), "", nil)
	if err != nil {
		return "", fmt.Errorf("list appData: %w", err)
	}
	var list struct {
		Files []driveFile `json:"files"`
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return "", fmt.Errorf("decode file list: %w", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	d.mu.Lock()
	d.fileID = list.Files[0].ID
	d.mu.Unlock()
	return list.Files[0].ID, nil
}

// Load returns nil when the appData file does not exist yet.
func (d *DrivePersister) Load(ctx context.Context) ([]byte, error) {
	id, err := d.lookup(ctx)
	if err != nil || id == "" {
		return nil, err
	}
	b, err := do(ctx, d.hc, http.MethodGet, d.baseURL+"/drive/v3/files/"+url.PathEscape(id)+"?alt=media", "", nil)
	if err != nil {
		return nil, fmt.Errorf("download state: %w", err)
	}
	return b, nil
}

func (d *DrivePersister) Save(ctx context.Context, blob []byte) error {
	id, err := d.lookup(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		if id, err = d.create(ctx); err != nil {
			return err
		}
	}
	_, err = do(ctx, d.hc, http.MethodPatch, d.baseURL+"/upload/drive/v3/files/"+url.PathEscape(id)+"?uploadType=media", "application/json", bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("upload state: %w", err)
	}
	return nil
}

func (d *DrivePersister) create(ctx context.Context) (string, error) {
	meta, _ := json.Marshal(map[string]any{"name": d.fileName, "parents": []string{"appDataFolder"}, "mimeType": "application/json"})
	b, err := do(ctx, d.hc, http.MethodPost, d.baseURL+"/drive/v3/files?fields=id", "application/json", bytes.NewReader(meta))
	if err != nil {
		return "", fmt.Errorf("create appData file: %w", err)
	}
	var f driveFile
	if err := json.Unmarshal(b, &f); err != nil || f.ID == "" {
		return "", fmt.Errorf("create appData file: no id in %q", string(b))
	}
	d.mu.Lock()
	d.fileID = f.ID
	d.mu.Unlock()
	return f.ID, nil
}
