package circle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pw-dashboard/internal/alert"
)

func TestMergeOverlaysAndBackfills(t *testing.T) {
	static := []Record{
		{"mac": "000D6F0001A5A3B6", "name": "tv", "location": "living", "category": "divers", "loginterval": float64(60)},
		{"mac": "000D6F0001A5A3B7", "name": "pv", "location": "roof", "category": "PV", "production": true},
	}
	dynamic := []Record{
		{"mac": "000d6f0001a5a3b6", "switch_state": "off", "schedule_state": "on", "schedule": "night", "monitor": "yes", "savelog": "no"},
	}

	circles, orphans := Merge(static, dynamic)
	require.Len(t, circles, 2)
	assert.Empty(t, orphans)

	tv := circles[0]
	assert.Equal(t, "tv", tv.Name)
	assert.Equal(t, "living", tv.Location)
	assert.Equal(t, "off", tv.SwitchState)
	assert.Equal(t, "off", tv.RelayOn)
	assert.Equal(t, "on", tv.ScheduleState)
	assert.Equal(t, "night", tv.Schedule)
	assert.Equal(t, PowerUnknown, tv.Power)
	assert.Equal(t, IconDivers, tv.Icon)
	assert.Equal(t, "interval: 60 min.<br>monitor (10s): yes<br>save log (60m): no<br>mac: 000d6f0001a5a3b6", tv.ToolTip)

	assert.Equal(t, "living", dynamic[0]["location"], "location back-filled into the dynamic record")
	assert.Equal(t, "divers", dynamic[0]["category"])

	pv := circles[1]
	assert.True(t, pv.Production)
	assert.Equal(t, IconPV, pv.Icon)
	assert.Equal(t, "", pv.SwitchState, "no dynamic record leaves the static copy alone")

	assert.Equal(t, "tv", static[0]["name"])
	assert.NotContains(t, static[0], "switch_state", "static records are not modified")
}

func TestMergeSkipsStaticWithoutMAC(t *testing.T) {
	circles, _ := Merge(
		[]Record{{"name": "ghost"}, {"mac": " ", "name": "blank"}, {"mac": "A", "name": "tv"}},
		[]Record{{"mac": "A", "switch_state": "on"}},
	)
	require.Len(t, circles, 1)
	assert.Equal(t, "tv", circles[0].Name)
	assert.Equal(t, "on", circles[0].SwitchState)
}

func TestMergeAlwaysOnForcesSwitch(t *testing.T) {
	for _, v := range []any{true, "True", "yes", "ON", "1", "t"} {
		circles, _ := Merge(
			[]Record{{"mac": "A"}},
			[]Record{{"mac": "A", "always_on": v, "switch_state": "off", "schedule_state": "on"}},
		)
		require.Len(t, circles, 1)
		c := circles[0]
		assert.True(t, c.AlwaysOn, "%v", v)
		assert.Equal(t, "on", c.SwitchState)
		assert.Equal(t, "on", c.RelayOn)
		assert.Equal(t, "off", c.ScheduleState)
	}

	circles, _ := Merge([]Record{{"mac": "A"}}, []Record{{"mac": "A", "always_on": "False", "switch_state": "off"}})
	assert.False(t, circles[0].AlwaysOn)
	assert.Equal(t, "off", circles[0].SwitchState)
}

func TestMergeReportsOrphans(t *testing.T) {
	circles, orphans := Merge([]Record{{"mac": "A"}}, []Record{{"mac": "B"}, {"mac": "a"}})
	assert.Len(t, circles, 1)
	assert.Equal(t, []string{"B"}, orphans)
}

func TestIconFor(t *testing.T) {
	assert.Equal(t, IconDefault, IconFor(""))
	assert.Equal(t, IconDefault, IconFor("lights"))
	assert.Equal(t, IconPV, IconFor("PV"))
	assert.Equal(t, IconDivers, IconFor("divers"))
}

func TestControlDocumentPreservesExtraKeys(t *testing.T) {
	in := `{"dynamic":[{"mac":"A","x":{"y":1}}],"log_level":"info","log_comm":"no"}`
	var doc ControlDocument
	require.NoError(t, json.Unmarshal([]byte(in), &doc))
	require.Len(t, doc.Dynamic, 1)
	assert.Len(t, doc.Extra, 2)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	empty, err := json.Marshal(ControlDocument{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dynamic":[]}`, string(empty))
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := Record{"mac": "A", "nested": map[string]any{"k": "v"}, "list": []any{"x"}}
	c := r.Clone()
	c["nested"].(map[string]any)["k"] = "changed"
	c["list"].([]any)[0] = "changed"
	assert.Equal(t, "v", r["nested"].(map[string]any)["k"])
	assert.Equal(t, "x", r["list"].([]any)[0])
}

type fakeSource struct {
	static     StaticDocument
	control    ControlDocument
	staticErr  error
	controlErr error
	saveErr    error
	saved      []ControlDocument
}

func (f *fakeSource) StaticConfig(context.Context) (StaticDocument, error) {
	return StaticDocument{Static: CloneRecords(f.static.Static)}, f.staticErr
}

func (f *fakeSource) ControlConfig(context.Context) (ControlDocument, error) {
	return f.control.Clone(), f.controlErr
}

func (f *fakeSource) SaveControlConfig(_ context.Context, doc ControlDocument) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, doc.Clone())
	return nil
}

type recordingSink struct {
	alerts []alert.Alert
}

func (r *recordingSink) SetAlert(a alert.Alert) { r.alerts = append(r.alerts, a) }

func (r *recordingSink) last() alert.Alert {
	if len(r.alerts) == 0 {
		return alert.Alert{}
	}
	return r.alerts[len(r.alerts)-1]
}

type recordingPatcher struct {
	mac     string
	dynamic Record
}

func (p *recordingPatcher) PatchCircle(mac string, dynamic Record) bool {
	p.mac = mac
	p.dynamic = dynamic
	return true
}

func newSource() *fakeSource {
	return &fakeSource{
		static: StaticDocument{Static: []Record{
			{"mac": "A", "name": "tv", "location": "living", "category": "divers"},
			{"mac": "B", "name": "fridge", "location": "kitchen"},
		}},
		control: ControlDocument{
			Dynamic: []Record{{"mac": "A", "switch_state": "on", "custom": "keep"}},
			Extra:   map[string]json.RawMessage{"log_level": json.RawMessage(`"debug"`)},
		},
	}
}

func TestLoad(t *testing.T) {
	src := newSource()
	sink := &recordingSink{}

	cfg, err := Load(context.Background(), src, sink, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, cfg.Circles, 2)
	assert.Equal(t, "on", cfg.Circles[0].SwitchState)
	assert.Empty(t, sink.alerts)
}

func TestLoadStaticFailure(t *testing.T) {
	src := newSource()
	src.staticErr = errors.New("connection refused")
	sink := &recordingSink{}

	_, err := Load(context.Background(), src, sink, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, alert.TypeDanger, sink.last().Type)
}

func TestLoadDynamicFailureDegrades(t *testing.T) {
	src := newSource()
	src.controlErr = errors.New("connection refused")
	sink := &recordingSink{}

	cfg, err := Load(context.Background(), src, sink, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, cfg.Circles, 2)
	assert.Equal(t, "", cfg.Circles[0].SwitchState)
	assert.Equal(t, alert.TypeDanger, sink.last().Type)
}

func newTestEditor(t *testing.T) (*Editor, *fakeSource, *recordingPatcher, *recordingSink) {
	t.Helper()
	src := newSource()
	cfg, err := Load(context.Background(), src, nil, zerolog.Nop())
	require.NoError(t, err)
	p := &recordingPatcher{}
	sink := &recordingSink{}
	return NewEditor(src, cfg, p, sink, zerolog.Nop()), src, p, sink
}

func TestEditorOpenCopies(t *testing.T) {
	e, _, _, _ := newTestEditor(t)

	d, err := e.Open("a")
	require.NoError(t, err)
	assert.Equal(t, "A", d.MAC)
	d.Static["name"] = "changed"
	d.Dynamic["switch_state"] = "off"
	assert.Equal(t, "tv", e.Static().Static[0]["name"])
	assert.Equal(t, "on", e.Control().Dynamic[0]["switch_state"])

	d, err = e.Open("B")
	require.NoError(t, err)
	assert.Equal(t, Record{"mac": "B"}, d.Dynamic)

	_, err = e.Open("Z")
	assert.ErrorIs(t, err, ErrUnknownCircle)
}

func TestEditorConfirmPostsControlOnly(t *testing.T) {
	e, src, p, sink := newTestEditor(t)

	d, err := e.Open("A")
	require.NoError(t, err)
	d.Dynamic["mac"] = "tampered"
	d.Dynamic["name"] = "television"
	d.Dynamic["location"] = "den"
	d.Dynamic["always_on"] = "yes"

	require.NoError(t, e.Confirm(context.Background(), d))

	require.Len(t, src.saved, 1)
	saved := src.saved[0]
	require.Len(t, saved.Dynamic, 1)
	assert.Equal(t, "A", saved.Dynamic[0]["mac"])
	assert.Equal(t, "keep", saved.Dynamic[0]["custom"])
	assert.Equal(t, json.RawMessage(`"debug"`), saved.Extra["log_level"])

	st := e.Static().Static[0]
	assert.Equal(t, "A", st["mac"])
	assert.Equal(t, "television", st["name"])
	assert.Equal(t, "den", st["location"])
	assert.Equal(t, "divers", st["category"])

	assert.Equal(t, "A", p.mac)
	assert.Equal(t, "yes", p.dynamic["always_on"])
	assert.Equal(t, alert.TypeSuccess, sink.last().Type)
}

func TestEditorConfirmAppendsMissingDynamic(t *testing.T) {
	e, src, _, _ := newTestEditor(t)

	d, err := e.Open("B")
	require.NoError(t, err)
	d.Dynamic["schedule"] = "night"
	require.NoError(t, e.Confirm(context.Background(), d))

	require.Len(t, src.saved, 1)
	require.Len(t, src.saved[0].Dynamic, 2)
	assert.Equal(t, "B", src.saved[0].Dynamic[1]["mac"])
	assert.Equal(t, "night", src.saved[0].Dynamic[1]["schedule"])
}

func TestEditorConfirmFailureChangesNothing(t *testing.T) {
	e, src, p, sink := newTestEditor(t)
	src.saveErr = errors.New("backend down")

	d, err := e.Open("A")
	require.NoError(t, err)
	d.Dynamic["name"] = "television"

	require.Error(t, e.Confirm(context.Background(), d))
	assert.Equal(t, "tv", e.Static().Static[0]["name"])
	assert.NotContains(t, e.Control().Dynamic[0], "name")
	assert.Empty(t, p.mac)
	assert.Equal(t, alert.TypeDanger, sink.last().Type)
}

func TestEditorCancelDoesNotWrite(t *testing.T) {
	e, src, _, _ := newTestEditor(t)
	d, err := e.Open("A")
	require.NoError(t, err)
	d.Dynamic["name"] = "x"
	e.Cancel(d)
	assert.Empty(t, src.saved)
}

func TestCirclePatch(t *testing.T) {
	circles, _ := Merge([]Record{{"mac": "A", "category": "PV"}}, nil)
	c := circles[0]
	c.Power = "12.3"
	c.Patch(Record{"always_on": true, "switch_state": "off"})
	assert.True(t, c.AlwaysOn)
	assert.Equal(t, "on", c.SwitchState)
	assert.Equal(t, "12.3", c.Power)
	assert.Equal(t, IconPV, c.Icon)
}
