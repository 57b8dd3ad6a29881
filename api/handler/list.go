package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/api/transport"
	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/pkg/httpcontext"
	"github.com/fastygo/todosync/repository"
	listUC "github.com/fastygo/todosync/usecase/list"
)

type ListHandler struct {
	baseHandler
	uc *listUC.UseCase
}

func NewListHandler(uc *listUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ListHandler {
	return &ListHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Fetch the whole list
// @Tags list
// @Router /api/v1/list [get]
func (h *ListHandler) GetList(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	records, revision, err := h.uc.List(stdCtx, id.OwnerID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, transport.NewListResponse(elements(records), revision))
}

// @Summary Replace the list with the uploaded one, merged per record
// @Tags list
// @Router /api/v1/list [patch]
func (h *ListHandler) SyncList(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}

	var req transport.ListRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}
	records, err := transport.Records(req.List)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	merged, revision, err := h.uc.Sync(stdCtx, id.OwnerID, id.DeviceID, records)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, transport.NewListResponse(elements(merged), revision))
}

// @Summary Add a record
// @Tags list
// @Router /api/v1/list [post]
func (h *ListHandler) Create(ctx *fasthttp.RequestCtx) {
	id, revision, rec, ok := h.mutation(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stored, next, err := h.uc.Create(stdCtx, id.OwnerID, id.DeviceID, revision, rec)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.log(stdCtx).Debug("record created", zap.String("id", rec.ID.String()), zap.Int64("revision", next))
	el := element(stored)
	h.respond(ctx, http.StatusOK, transport.NewElementResponse(&el, next))
}

// @Summary Replace a record
// @Tags list
// @Router /api/v1/list/{id} [put]
func (h *ListHandler) Update(ctx *fasthttp.RequestCtx) {
	recordID, ok := h.pathID(ctx)
	if !ok {
		return
	}
	id, revision, rec, ok := h.mutation(ctx)
	if !ok {
		return
	}
	if rec.ID != recordID {
		h.respondInvalid(ctx, "element id does not match path")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stored, next, err := h.uc.Update(stdCtx, id.OwnerID, id.DeviceID, revision, rec)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	el := element(stored)
	h.respond(ctx, http.StatusOK, transport.NewElementResponse(&el, next))
}

// @Summary Remove a record
// @Tags list
// @Router /api/v1/list/{id} [delete]
func (h *ListHandler) Delete(ctx *fasthttp.RequestCtx) {
	recordID, ok := h.pathID(ctx)
	if !ok {
		return
	}
	id, ok := h.identity(ctx)
	if !ok {
		return
	}
	revision, ok := h.revision(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	deleted, next, err := h.uc.Delete(stdCtx, id.OwnerID, revision, recordID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	el := element(*deleted)
	h.respond(ctx, http.StatusOK, transport.NewElementResponse(&el, next))
}

// mutation reads everything a single-record write needs, answering the
// request itself when something is missing.
func (h *ListHandler) mutation(ctx *fasthttp.RequestCtx) (httpcontext.Identity, int64, domain.Record, bool) {
	id, ok := h.identity(ctx)
	if !ok {
		return id, 0, domain.Record{}, false
	}
	revision, ok := h.revision(ctx)
	if !ok {
		return id, 0, domain.Record{}, false
	}

	var req transport.ElementRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return id, 0, domain.Record{}, false
	}
	rec, err := req.Element.Record()
	if err != nil {
		h.respondError(ctx, err)
		return id, 0, domain.Record{}, false
	}
	return id, revision, rec, true
}

func (h *ListHandler) identity(ctx *fasthttp.RequestCtx) (httpcontext.Identity, bool) {
	id, ok := httpcontext.IdentityFrom(ctx)
	if !ok {
		h.respondError(ctx, domain.ErrUnauthorized)
	}
	return id, ok
}

func (h *ListHandler) revision(ctx *fasthttp.RequestCtx) (int64, bool) {
	raw := ctx.Request.Header.Peek(transport.HeaderRevision)
	if len(raw) == 0 {
		h.respondInvalid(ctx, "missing "+transport.HeaderRevision+" header")
		return 0, false
	}
	revision, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || revision < 0 {
		h.respondInvalid(ctx, "invalid "+transport.HeaderRevision+" header")
		return 0, false
	}
	return revision, true
}

func (h *ListHandler) pathID(ctx *fasthttp.RequestCtx) (uuid.UUID, bool) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondInvalid(ctx, "invalid record id")
		return uuid.Nil, false
	}
	return id, true
}

func element(rec repository.StoredRecord) transport.Element {
	return transport.FromRecord(rec.Record, rec.LastUpdatedBy)
}

func elements(records []repository.StoredRecord) []transport.Element {
	out := make([]transport.Element, 0, len(records))
	for _, rec := range records {
		out = append(out, element(rec))
	}
	return out
}
