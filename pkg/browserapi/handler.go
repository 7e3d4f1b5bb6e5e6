// Package browserapi implements the Browser Session Handler (Component
// H): dispatch of inbound browser frames by msg_type to the Homebase
// Link, the Device Registry, and the read-only SQL surface.
package browserapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// Evaluator is the subset of pkg/homebase.Link the handler needs to run
// esscmd/gitcmd scripts. pkg/registry.Registry.Ensure only promises
// Start/Snapshot/SetExtraSubscribeKeys, so RegistryAdapter asserts the returned Link out to this
// wider interface at the one call site that needs it.
type Evaluator interface {
	Eval(ctx context.Context, script string, timeout time.Duration) (string, error)
}

// Store is the subset of pkg/store.Store the handler needs.
type Store interface {
	AddDevice(ctx context.Context, address, displayName string) (models.Device, error)
	UpsertSubjectOptions(ctx context.Context, address, csvOptions string) error
	Query(ctx context.Context, sql string) (columns []string, rows [][]interface{}, err error)
}

// Registry is the subset of pkg/registry.Registry the handler needs
// beyond link lookup: device bookkeeping for AddDevice/Addsubject.
type Registry interface {
	Add(ctx context.Context, address, displayName string) (models.Device, error)
	Addresses() []string
	Ensure(ctx context.Context, address string) (Evaluator, error)
}

// StatusLookup is the subset of pkg/statuscache.Cache the Addsubject rule
// needs to read every device's current ess/animalOptions entry.
type StatusLookup interface {
	Get(key models.StatusKey) (models.StatusEntry, bool)
}

// Validator is the subset of pkg/store's SQL safety filter the handler
// needs (ValidateReadOnly).
type Validator func(sql string) error

// Handler dispatches inbound browser frames by msg_type.
type Handler struct {
	registry Registry
	store    Store
	status   StatusLookup
	validate Validator
	log      logger.Logger
}

func New(registry Registry, store Store, status StatusLookup, validate Validator, log logger.Logger) *Handler {
	return &Handler{registry: registry, store: store, status: status, validate: validate, log: log}
}

// HandleMessage implements pkg/broadcast.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, raw []byte, reply func(models.BrowserFrame)) {
	var req models.BrowserRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(models.BrowserFrame{Type: "error", Message: "malformed request"})
		return
	}

	switch req.MsgType {
	case "esscmd":
		h.handleCmd(ctx, req, req.Msg, reply)
	case "gitcmd":
		h.handleCmd(ctx, req, fmt.Sprintf("send git {%s}", req.Msg), reply)
	case "AddDevice":
		h.handleAddDevice(ctx, req, reply)
	case "Addsubject":
		h.handleAddSubject(ctx, req, reply)
	case "sql_query":
		h.handleSQLQuery(ctx, req, reply)
	case "get_options":
		h.handleGetOptions(ctx, req, reply)
	default:
		reply(models.BrowserFrame{Type: "error", Message: "unrecognized msg_type: " + req.MsgType})
	}
}

func (h *Handler) handleCmd(ctx context.Context, req models.BrowserRequest, script string, reply func(models.BrowserFrame)) {
	link, err := h.registry.Ensure(ctx, req.IP)
	if err != nil {
		reply(models.BrowserFrame{Type: "cmd_error", Kind: req.MsgType, IP: req.IP, Error: err.Error()})
		return
	}

	result, err := link.Eval(ctx, script, 0)
	if err != nil {
		reply(models.BrowserFrame{Type: "cmd_error", Kind: req.MsgType, IP: req.IP, Error: err.Error()})
		return
	}

	reply(models.BrowserFrame{Type: "cmd_ok", Kind: req.MsgType, IP: req.IP, Result: result})
}

func (h *Handler) handleAddDevice(ctx context.Context, req models.BrowserRequest, reply func(models.BrowserFrame)) {
	device, err := h.store.AddDevice(ctx, req.IP, req.Msg)
	if err != nil {
		reply(models.BrowserFrame{Type: "cmd_error", Kind: "AddDevice", IP: req.IP, Error: err.Error()})
		return
	}

	if _, err := h.registry.Add(ctx, req.IP, req.Msg); err != nil {
		h.log.Warn().Err(err).Str("address", req.IP).Msg("device persisted but registry add failed")
	}

	reply(models.BrowserFrame{Type: "cmd_ok", Kind: "AddDevice", IP: req.IP, Result: device})
}

func (h *Handler) handleAddSubject(ctx context.Context, req models.BrowserRequest, reply func(models.BrowserFrame)) {
	merged := computeSubjectOptions(h.registry.Addresses(), h.status, req.Msg)

	for _, addr := range h.registry.Addresses() {
		if err := h.store.UpsertSubjectOptions(ctx, addr, merged); err != nil {
			h.log.Warn().Err(err).Str("address", addr).Msg("failed to persist subject options")
		}
	}

	reply(models.BrowserFrame{Type: "cmd_ok", Kind: "Addsubject", IP: req.IP, Result: merged})
}

func (h *Handler) handleSQLQuery(ctx context.Context, req models.BrowserRequest, reply func(models.BrowserFrame)) {
	columns, rows, err := h.runQuery(ctx, req.Msg, reply)
	if err != nil {
		return
	}

	reply(models.BrowserFrame{Type: "sql_table", Result: tableResult{Columns: columns, Rows: rows}})
}

func (h *Handler) handleGetOptions(ctx context.Context, req models.BrowserRequest, reply func(models.BrowserFrame)) {
	_, rows, err := h.runQuery(ctx, req.Msg, reply)
	if err != nil {
		return
	}

	options := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			options = append(options, row[0])
		}
	}

	reply(models.BrowserFrame{Type: "listbox_options", Result: options})
}

// runQuery validates and executes sql, replying {type:"error", message} and
// returning a non-nil error itself if validation or execution failed, so
// callers can short-circuit without double-replying.
func (h *Handler) runQuery(ctx context.Context, sql string, reply func(models.BrowserFrame)) ([]string, [][]interface{}, error) {
	if err := h.validate(sql); err != nil {
		reply(models.BrowserFrame{Type: "error", Message: err.Error()})
		return nil, nil, err
	}

	columns, rows, err := h.store.Query(ctx, sql)
	if err != nil {
		reply(models.BrowserFrame{Type: "error", Message: err.Error()})
		return nil, nil, err
	}

	coerced := make([][]interface{}, len(rows))
	for i, row := range rows {
		coerced[i] = make([]interface{}, len(row))
		for j, cell := range row {
			coerced[i][j] = coerceCell(cell)
		}
	}

	return columns, coerced, nil
}

type tableResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}
