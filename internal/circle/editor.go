package circle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/alert"
)

// ErrUnknownCircle is returned when no static record matches an identifier.
var ErrUnknownCircle = errors.New("unknown circle")

// Patcher receives the dynamic fields of a confirmed edit.
type Patcher interface {
	PatchCircle(mac string, dynamic Record) bool
}

// Draft is an editable copy of one device's static and dynamic records.
type Draft struct {
	MAC     string `json:"mac"`
	Static  Record `json:"static"`
	Dynamic Record `json:"dynamic"`
}

// Editor edits one device at a time against the loaded documents.
type Editor struct {
	src     Source
	patcher Patcher
	sink    alert.Sink
	log     zerolog.Logger

	mu      sync.Mutex
	static  StaticDocument
	control ControlDocument
}

// NewEditor creates an editor over cfg. patcher and sink may be nil.
func NewEditor(src Source, cfg Config, patcher Patcher, sink alert.Sink, log zerolog.Logger) *Editor {
	if sink == nil {
		sink = alert.Discard
	}
	e := &Editor{src: src, patcher: patcher, sink: sink, log: log}
	e.Reset(cfg)
	return e
}

// Reset replaces the documents after a reload.
func (e *Editor) Reset(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.static = StaticDocument{Static: CloneRecords(cfg.Static.Static)}
	e.control = cfg.Control.Clone()
}

// Control returns a copy of the current control document.
func (e *Editor) Control() ControlDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.control.Clone()
}

// Static returns a copy of the current static document.
func (e *Editor) Static() StaticDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StaticDocument{Static: CloneRecords(e.static.Static)}
}

// Open returns deep copies of the records for mac. A device without a
// dynamic record gets an empty one carrying its identifier.
func (e *Editor) Open(mac string) (Draft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stat := ByMAC(e.static.Static, mac)
	if stat == nil {
		return Draft{}, fmt.Errorf("%w: %s", ErrUnknownCircle, mac)
	}
	d := Draft{MAC: stat.MAC(), Static: stat.Clone()}
	if dyn := ByMAC(e.control.Dynamic, mac); dyn != nil {
		d.Dynamic = dyn.Clone()
	} else {
		d.Dynamic = Record{KeyMAC: d.MAC}
	}
	return d, nil
}

// Confirm writes a draft back. Both records get the opened identifier and the
// static name, location and category follow the dynamic record. Only the
// control document is posted. The local documents and the patcher are
// updated after the backend accepted the write.
func (e *Editor) Confirm(ctx context.Context, d Draft) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	si := IndexByMAC(e.static.Static, d.MAC)
	if si < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCircle, d.MAC)
	}
	mac := e.static.Static[si].MAC()

	stat := d.Static.Clone()
	if stat == nil {
		stat = Record{}
	}
	dyn := d.Dynamic.Clone()
	if dyn == nil {
		dyn = Record{}
	}
	stat[KeyMAC] = mac
	dyn[KeyMAC] = mac
	for _, k := range []string{KeyName, KeyLocation, KeyCategory} {
		if v, ok := dyn[k]; ok {
			stat[k] = cloneValue(v)
		}
	}

	control := e.control.Clone()
	if di := IndexByMAC(control.Dynamic, mac); di >= 0 {
		control.Dynamic[di] = dyn
	} else {
		control.Dynamic = append(control.Dynamic, dyn)
	}

	if err := e.src.SaveControlConfig(ctx, control); err != nil {
		e.log.Error().Err(err).Str("mac", mac).Msg("failed to save device configuration")
		e.sink.SetAlert(alert.Danger("failed to save configuration of " + describe(dyn, mac)))
		return fmt.Errorf("save control config: %w", err)
	}

	e.control = control
	e.static.Static[si] = stat
	if e.patcher != nil && !e.patcher.PatchCircle(mac, dyn.Clone()) {
		e.log.Warn().Str("mac", mac).Msg("no circle to patch after device edit")
	}
	e.log.Info().Str("mac", mac).Msg("device configuration saved")
	e.sink.SetAlert(alert.Success("configuration of " + describe(dyn, mac) + " saved"))
	return nil
}

// Cancel discards a draft.
func (e *Editor) Cancel(d Draft) {
	e.log.Debug().Str("mac", d.MAC).Msg("device edit cancelled")
}

func describe(r Record, mac string) string {
	if name := strings.TrimSpace(r.String(KeyName)); name != "" {
		return name
	}
	return mac
}
