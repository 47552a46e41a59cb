package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// HTTPStorage talks to a duffel server over its REST API.
type HTTPStorage struct {
	base   string
	token  string
	client *http.Client

	mu     sync.RWMutex
	origin uuid.UUID
}

var _ Storage = (*HTTPStorage)(nil)

// NewHTTPStorage creates a storage client for the server at baseURL.
// httpClient may be nil.
func NewHTTPStorage(baseURL, token string, httpClient *http.Client) *HTTPStorage {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPStorage{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: httpClient,
	}
}

// SetOrigin pins the live connection ID onto subsequent mutations.
func (s *HTTPStorage) SetOrigin(connID uuid.UUID) {
	s.mu.Lock()
	s.origin = connID
	s.mu.Unlock()
}

func (s *HTTPStorage) currentOrigin() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin
}

type wireError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doJSON runs one request. body is JSON-encoded when non-nil; a 2xx
// response is decoded into out when out is non-nil.
func (s *HTTPStorage) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fault.Wrap(fault.CodeInternal, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, reader)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if origin := s.currentOrigin(); origin != uuid.Nil {
		req.Header.Set("X-Duffel-Conn", origin.String())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fault.Wrap(fault.CodeTimeout, "request deadline exceeded", err)
		}
		return fault.Wrap(fault.CodeNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fault.Wrap(fault.CodeInternal, "decode response", err)
		}
		return nil
	}

	var we wireError
	if err := json.NewDecoder(resp.Body).Decode(&we); err != nil || we.Error == "" {
		// No usable envelope: a proxy or middlebox answered, not the
		// duffel server. Classify by status alone.
		return fault.New(fault.CodeFromHTTPStatus(resp.StatusCode), fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return fault.New(fault.Code(we.Error), we.Message)
}

func (s *HTTPStorage) listPath(listID model.ListID) string {
	return "/v1/lists/" + listID.String()
}

func (s *HTTPStorage) GetSnapshot(ctx context.Context, listID model.ListID) (Snapshot, error) {
	var snap Snapshot
	err := s.doJSON(ctx, http.MethodGet, s.listPath(listID), nil, &snap)
	return snap, err
}

func (s *HTTPStorage) FetchView(ctx context.Context, listID model.ListID, kind model.ContainerKind, ref model.Ref) ([]model.Item, error) {
	path := s.listPath(listID) + "/items?unassigned=" + string(kind)
	if ref.Valid {
		path = s.listPath(listID) + "/items?container=" + ref.ID.String()
	}
	var envelope struct {
		Items []model.Item `json:"items"`
	}
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Items, nil
}

func (s *HTTPStorage) CreateItem(ctx context.Context, listID model.ListID, draft ItemDraft) (model.Item, error) {
	var item model.Item
	err := s.doJSON(ctx, http.MethodPost, s.listPath(listID)+"/items", draft, &item)
	return item, err
}

func (s *HTTPStorage) UpdateItem(ctx context.Context, listID model.ListID, itemID model.ItemID, patch model.Patch) (model.Item, error) {
	var item model.Item
	err := s.doJSON(ctx, http.MethodPatch, s.listPath(listID)+"/items/"+itemID.String(), patch, &item)
	return item, err
}

func (s *HTTPStorage) DeleteItem(ctx context.Context, listID model.ListID, itemID model.ItemID) error {
	return s.doJSON(ctx, http.MethodDelete, s.listPath(listID)+"/items/"+itemID.String(), nil, nil)
}

func (s *HTTPStorage) BulkUpdateItems(ctx context.Context, listID model.ListID, ids []model.ItemID, patch model.Patch) (BulkResult, error) {
	body := struct {
		IDs   []model.ItemID `json:"ids"`
		Patch model.Patch    `json:"patch"`
	}{IDs: ids, Patch: patch}

	// Both 200 and 207 decode to the same shape; partial success is a
	// normal outcome, not a transport failure.
	var result BulkResult
	err := s.doJSON(ctx, http.MethodPost, s.listPath(listID)+"/items/bulk", body, &result)
	return result, err
}

func (s *HTTPStorage) Containers(ctx context.Context, listID model.ListID) ([]model.Container, error) {
	var envelope struct {
		Containers []model.Container `json:"containers"`
	}
	if err := s.doJSON(ctx, http.MethodGet, s.listPath(listID)+"/containers", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Containers, nil
}

func (s *HTTPStorage) CreateContainer(ctx context.Context, listID model.ListID, kind model.ContainerKind, name string) (model.Container, error) {
	body := struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}{Kind: string(kind), Name: name}

	var container model.Container
	err := s.doJSON(ctx, http.MethodPost, s.listPath(listID)+"/containers", body, &container)
	return container, err
}

func (s *HTTPStorage) RenameContainer(ctx context.Context, listID model.ListID, containerID model.ContainerID, name string) (model.Container, error) {
	body := struct {
		Name string `json:"name"`
	}{Name: name}

	var container model.Container
	err := s.doJSON(ctx, http.MethodPatch, s.listPath(listID)+"/containers/"+containerID.String(), body, &container)
	return container, err
}

func (s *HTTPStorage) DeleteContainer(ctx context.Context, listID model.ListID, containerID model.ContainerID) error {
	return s.doJSON(ctx, http.MethodDelete, s.listPath(listID)+"/containers/"+containerID.String(), nil, nil)
}
