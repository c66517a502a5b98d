package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"

	"climatemap-server/internal/modules/climate/domain"
	"climatemap-server/internal/modules/climate/render"
	"climatemap-server/internal/modules/climate/types"
)

var pageTmpl *template.Template

var errNotLoaded = errors.New("map templates not loaded: call views.LoadTemplates during startup")

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// loadTemplatesFromFS parses the page and partial templates under dir.
// Tests pass their own fs to exercise failure paths.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	pageTmpl, err = template.New("views").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads the embedded templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// MapData is the view model of the SVG map.
type MapData struct {
	Width        int
	Height       int
	Transform    string
	TransitionMS int64
	Elements     []render.ElementView
}

// LabelsData is the view model of the date, season and mean labels.
type LabelsData struct {
	Date        string
	DateLabel   string
	Season      string
	SeasonClass string
	HasData     bool
	Mean        float64
}

type PageData struct {
	Title     string
	Offset    int
	MaxOffset int
	Playing   bool
	Map       MapData
	Labels    LabelsData
	Legend    domain.Legend
}

// LabelsFor builds the labels view model of a frame.
func LabelsFor(f types.Frame) LabelsData {
	l := LabelsData{
		Date:      f.Date,
		DateLabel: f.DateLabel,
		Season:    f.Season,
		HasData:   f.HasData,
		Mean:      f.Mean,
	}
	if f.Season != "" {
		l.SeasonClass = domain.CSSClass(types.Season{Name: f.Season})
	}
	return l
}

func RenderPage(w io.Writer, data *PageData) error {
	if pageTmpl == nil {
		return errNotLoaded
	}
	return pageTmpl.ExecuteTemplate(w, "index.html", data)
}

// RenderMapPartial executes only the SVG map.
func RenderMapPartial(w io.Writer, data *MapData) error {
	if pageTmpl == nil {
		return errNotLoaded
	}
	return pageTmpl.ExecuteTemplate(w, "partials/map.html", data)
}

func RenderLegendPartial(w io.Writer, data *domain.Legend) error {
	if pageTmpl == nil {
		return errNotLoaded
	}
	return pageTmpl.ExecuteTemplate(w, "partials/legend.html", data)
}

func RenderLabelsPartial(w io.Writer, data *LabelsData) error {
	if pageTmpl == nil {
		return errNotLoaded
	}
	return pageTmpl.ExecuteTemplate(w, "partials/labels.html", data)
}
