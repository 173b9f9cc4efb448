package web

import (
	"embed"
	"html/template"
	"io"
	"time"

	"weekly-deals/pkg/models"
)

//go:embed templates
var templatesFs embed.FS

// PageContext carries everything the comparison page shows: ranked deals,
// per-retailer flyer links and the attribution link-outs.
type PageContext struct {
	Deals     []models.Offer
	Flyers    map[string]string
	LinkURLs  map[string]string
	FetchedAt time.Time
}

func (c PageContext) FormattedFetchedAt() string {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		loc = time.UTC
	}
	return c.FetchedAt.In(loc).Format("2006-01-02 15:04")
}

func RenderDeals(w io.Writer, c PageContext) error {
	t, err := template.ParseFS(templatesFs, "templates/index.html.tpl")
	if err != nil {
		return err
	}
	return t.Execute(w, c)
}
