package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"duffel/internal/audit"
	"duffel/internal/auth"
	"duffel/internal/service"
	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// Handler is the thin HTTP layer. It delegates to the domain service so
// transport concerns stay isolated.
type Handler struct {
	logger  *slog.Logger
	svc     *service.Service
	journal *audit.Publisher
	tokens  *auth.TokenManager
}

// NewHandler creates the HTTP handler set.
func NewHandler(logger *slog.Logger, svc *service.Service, journal *audit.Publisher, tokens *auth.TokenManager) *Handler {
	return &Handler{
		logger:  logger,
		svc:     svc,
		journal: journal,
		tokens:  tokens,
	}
}

// originOf extracts the mutation origin from the X-Duffel-Conn header. A
// client sends its live connection ID so its own websocket does not echo the
// mutation back. Absent or malformed headers mean no exclusion.
func originOf(r *http.Request) uuid.UUID {
	raw := r.Header.Get("X-Duffel-Conn")
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func listIDParam(r *http.Request) (model.ListID, error) {
	id, err := model.ParseListID(chi.URLParam(r, "listID"))
	if err != nil {
		return model.ListID{}, fault.Wrap(fault.CodeValidation, "invalid list id", err)
	}
	return id, nil
}

func itemIDParam(r *http.Request) (model.ItemID, error) {
	id, err := model.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		return model.ItemID{}, fault.Wrap(fault.CodeValidation, "invalid item id", err)
	}
	return id, nil
}

func containerIDParam(r *http.Request) (model.ContainerID, error) {
	id, err := model.ParseContainerID(chi.URLParam(r, "containerID"))
	if err != nil {
		return model.ContainerID{}, fault.Wrap(fault.CodeValidation, "invalid container id", err)
	}
	return id, nil
}

// handleMintToken issues a development token. Callers either bring their
// actor ID or get a fresh one.
func (h *Handler) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actorId"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
			return
		}
	}

	actor := model.NewActorID()
	if req.ActorID != "" {
		parsed, err := model.ParseActorID(req.ActorID)
		if err != nil {
			WriteError(w, fault.Wrap(fault.CodeValidation, "invalid actor id", err))
			return
		}
		actor = parsed
	}

	token, err := h.tokens.Mint(actor)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "token mint failed", "error", err)
		WriteError(w, fault.New(fault.CodeInternal, "could not mint token"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"actorId": actor.String(),
	})
}

func (h *Handler) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
		return
	}

	list, err := h.svc.CreateList(r.Context(), ActorFrom(r.Context()), req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, list)
}

func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	snap, err := h.svc.GetSnapshot(r.Context(), ActorFrom(r.Context()), listID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req struct {
		ActorID string `json:"actorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
		return
	}
	invitee, err := model.ParseActorID(req.ActorID)
	if err != nil {
		WriteError(w, fault.Wrap(fault.CodeValidation, "invalid actor id", err))
		return
	}

	if err := h.svc.Share(r.Context(), ActorFrom(r.Context()), listID, invitee); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListItems serves three shapes of the same collection: all items,
// items in one container (?container=id), or items a view kind shows as
// unassigned (?unassigned=kind).
func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	ctx := r.Context()
	actor := ActorFrom(ctx)

	var items []model.Item
	switch {
	case r.URL.Query().Get("container") != "":
		containerID, err := model.ParseContainerID(r.URL.Query().Get("container"))
		if err != nil {
			WriteError(w, fault.Wrap(fault.CodeValidation, "invalid container id", err))
			return
		}
		items, err = h.svc.ItemsInContainer(ctx, actor, listID, containerID)
		if err != nil {
			WriteError(w, err)
			return
		}
	case r.URL.Query().Get("unassigned") != "":
		kind, err := model.ParseKind(r.URL.Query().Get("unassigned"))
		if err != nil {
			WriteError(w, fault.Wrap(fault.CodeValidation, "invalid container kind", err))
			return
		}
		items, err = h.svc.ItemsUnassigned(ctx, actor, listID, kind)
		if err != nil {
			WriteError(w, err)
			return
		}
	default:
		items, err = h.svc.Items(ctx, actor, listID)
		if err != nil {
			WriteError(w, err)
			return
		}
	}

	WriteJSON(w, http.StatusOK, map[string][]model.Item{"items": items})
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req struct {
		Name     string    `json:"name"`
		Quantity int       `json:"quantity"`
		Packed   bool      `json:"packed"`
		Category model.Ref `json:"categoryId"`
		Bag      model.Ref `json:"bagId"`
		Traveler model.Ref `json:"travelerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
		return
	}

	item, err := h.svc.CreateItem(r.Context(), ActorFrom(r.Context()), originOf(r), listID, service.CreateItemParams{
		Name:     req.Name,
		Quantity: req.Quantity,
		Packed:   req.Packed,
		Category: req.Category,
		Bag:      req.Bag,
		Traveler: req.Traveler,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	itemID, err := itemIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var patch model.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
		return
	}

	item, err := h.svc.UpdateItem(r.Context(), ActorFrom(r.Context()), originOf(r), listID, itemID, patch)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	itemID, err := itemIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.svc.DeleteItem(r.Context(), ActorFrom(r.Context()), originOf(r), listID, itemID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkUpdateResponse struct {
	Succeeded int               `json:"succeeded"`
	Total     int               `json:"total"`
	Rejected  []fault.Rejection `json:"rejected"`
	Items     []model.Item      `json:"items"`
}

// handleBulkUpdateItems applies one patch to many items. Full success is a
// 200; partial success is a 207 listing the per-item rejections alongside
// the applied items.
func (h *Handler) handleBulkUpdateItems(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req struct {
		IDs   []model.ItemID `json:"ids"`
		Patch model.Patch    `json:"patch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
		return
	}

	items, err := h.svc.BulkUpdateItems(r.Context(), ActorFrom(r.Context()), originOf(r), listID, req.IDs, req.Patch)
	if err != nil {
		if bulk, ok := fault.AsBulk(err); ok {
			WriteJSON(w, http.StatusMultiStatus, bulkUpdateResponse{
				Succeeded: bulk.Succeeded,
				Total:     bulk.Total,
				Rejected:  bulk.Rejected,
				Items:     items,
			})
			return
		}
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, bulkUpdateResponse{
		Succeeded: len(items),
		Total:     len(req.IDs),
		Rejected:  []fault.Rejection{},
		Items:     items,
	})
}

func (h *Handler) handleListContainers(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	containers, err := h.svc.Containers(r.Context(), ActorFrom(r.Context()), listID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string][]model.Container{"containers": containers})
}

func (h *Handler) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
		return
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		WriteError(w, fault.Wrap(fault.CodeValidation, "invalid container kind", err))
		return
	}

	container, err := h.svc.CreateContainer(r.Context(), ActorFrom(r.Context()), originOf(r), listID, kind, req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, container)
}

func (h *Handler) handleRenameContainer(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	containerID, err := containerIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, fault.New(fault.CodeValidation, "invalid request body"))
		return
	}

	container, err := h.svc.RenameContainer(r.Context(), ActorFrom(r.Context()), originOf(r), listID, containerID, req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, container)
}

func (h *Handler) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	containerID, err := containerIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.svc.DeleteContainer(r.Context(), ActorFrom(r.Context()), originOf(r), listID, containerID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	members, err := h.svc.Presence(r.Context(), ActorFrom(r.Context()), listID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"members": members})
}

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	listID, err := listIDParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	ctx := r.Context()

	// The journal shares the list's access control.
	if _, err := h.svc.GetList(ctx, ActorFrom(ctx), listID); err != nil {
		WriteError(w, err)
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			WriteError(w, fault.New(fault.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxJournalLimit)
	}

	entries, err := h.journal.List(ctx, listID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "journal read failed", "error", err, "list_id", listID)
		WriteError(w, fault.New(fault.CodeInternal, "could not read journal"))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	WriteJSON(w, http.StatusOK, map[string][]audit.Entry{"entries": entries})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
