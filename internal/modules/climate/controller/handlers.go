package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"climatemap-server/internal/modules/climate/domain"
	"climatemap-server/internal/modules/climate/playback"
	"climatemap-server/internal/modules/climate/render"
	"climatemap-server/internal/modules/climate/stream"
	"climatemap-server/internal/modules/climate/types"
	"climatemap-server/internal/modules/climate/views"
	"climatemap-server/internal/utils"
)

type seasonView struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
	Class string `json:"class"`
}

type rangeResponse struct {
	Start      string              `json:"start"`
	End        string              `json:"end"`
	StartLabel string              `json:"startLabel"`
	EndLabel   string              `json:"endLabel"`
	DayCount   int                 `json:"dayCount"`
	MaxOffset  int                 `json:"maxOffset"`
	Seasons    []seasonView        `json:"seasons"`
	LastImport *types.ImportRecord `json:"lastImport,omitempty"`
}

func (c *climateControllerImpl) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	frame := c.frames.Current()
	data := &views.PageData{
		Title:     c.title,
		Offset:    frame.Offset,
		MaxOffset: frame.DayCount - 1,
		Playing:   c.playback != nil && c.playback.Snapshot().State == playback.Playing,
		Map: views.MapData{
			Width:        c.width,
			Height:       c.height,
			Transform:    render.IdentityZoom().Transform(),
			TransitionMS: c.frames.Scene().Transition().Milliseconds(),
			Elements:     c.frames.Scene().Elements(),
		},
		Labels: views.LabelsFor(frame),
		Legend: c.frames.Scale().Legend(legendWidth, legendHeight, legendTicks),
	}
	var buf bytes.Buffer
	if err := views.RenderPage(&buf, data); err != nil {
		slog.Error("page template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *climateControllerImpl) handleMapPartial(w http.ResponseWriter, r *http.Request) {
	offset, hasOffset, err := parseOffsetQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	zoom, err := parseZoomQuery(r, c.width, c.height)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	elements := c.frames.Scene().Elements()
	if hasOffset {
		elements = applyFrame(elements, c.frames.Preview(offset))
	}
	data := &views.MapData{
		Width:        c.width,
		Height:       c.height,
		Transform:    zoom.Transform(),
		TransitionMS: c.frames.Scene().Transition().Milliseconds(),
		Elements:     elements,
	}
	var buf bytes.Buffer
	if err := views.RenderMapPartial(&buf, data); err != nil {
		slog.Error("map partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

// applyFrame replaces the colours of the live scene elements with those of
// frame, keeping the projected paths.
func applyFrame(elements []render.ElementView, frame types.Frame) []render.ElementView {
	fills := make(map[string]types.RegionFill, len(frame.Fills))
	for _, f := range frame.Fills {
		fills[f.RegionID] = f
	}
	out := make([]render.ElementView, 0, len(elements))
	for _, el := range elements {
		if f, ok := fills[el.ID]; ok {
			el.Fill = f.Fill
			el.Target = f.Fill
			el.Temperature = f.Temperature
			el.Explicit = f.Explicit
			el.Tooltip = domain.TooltipText(el.ID, f.Temperature)
		}
		out = append(out, el)
	}
	return out
}

func (c *climateControllerImpl) handleRange(w http.ResponseWriter, r *http.Request) {
	rg := c.frames.Range()
	resp := rangeResponse{
		Start:      domain.FormatKey(rg.Start),
		End:        domain.FormatKey(rg.End),
		StartLabel: domain.FormatLabel(rg.Start),
		EndLabel:   domain.FormatLabel(rg.End),
		DayCount:   rg.DayCount,
		MaxOffset:  rg.DayCount - 1,
	}
	for _, s := range c.frames.Seasons() {
		resp.Seasons = append(resp.Seasons, seasonView{
			Name:  s.Name,
			Start: domain.FormatKey(s.Start),
			End:   domain.FormatKey(s.End),
			Class: domain.CSSClass(s),
		})
	}
	if c.imports != nil {
		rec, ok, err := c.imports.LatestImport()
		if err != nil {
			slog.Warn("range: latest import lookup failed", "error", err)
		} else if ok {
			resp.LastImport = &rec
		}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *climateControllerImpl) handleFrame(w http.ResponseWriter, r *http.Request) {
	offset, err := parseOffset(r.PathValue("offset"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.frames.Preview(offset))
}

func (c *climateControllerImpl) handleRegion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing region id")
		return
	}
	offset, ok, err := parseOffsetQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		offset = c.frames.Current().Offset
	}
	info, found := c.frames.Region(id, offset)
	if !found {
		utils.WriteError(w, http.StatusNotFound, "unknown region "+id)
		return
	}
	utils.WriteJSON(w, http.StatusOK, info)
}

func (c *climateControllerImpl) handleLegend(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.frames.Scale().Legend(legendWidth, legendHeight, legendTicks))
}

func (c *climateControllerImpl) handlePlayback(w http.ResponseWriter, r *http.Request) {
	if c.playback == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "playback not available")
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.playback.Snapshot())
}

func (c *climateControllerImpl) handlePlaybackAction(w http.ResponseWriter, r *http.Request) {
	if c.playback == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "playback not available")
		return
	}
	cmd := stream.Command{Action: r.PathValue("action")}
	switch cmd.Action {
	case "play", "pause", "toggle", "reset":
	case "seek":
		offset, ok, err := parseOffsetQuery(r)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !ok {
			utils.WriteError(w, http.StatusBadRequest, "missing 'offset'")
			return
		}
		cmd.Offset = &offset
	default:
		utils.WriteError(w, http.StatusNotFound, "unknown playback action "+cmd.Action)
		return
	}

	snap := stream.Apply(c.playback, cmd)
	if c.onPlayback != nil {
		c.onPlayback(snap)
	}
	utils.WriteJSON(w, http.StatusOK, snap)
}
