package server

import (
	"net/http"
	"net/url"
	"time"

	"quillpost/internal/models"
	"quillpost/web"

	"github.com/gofiber/template/html/v2"
)

const picturesURL = "/static/profile_pics/"

func newViews() *html.Engine {
	engine := html.NewFileSystem(http.FS(web.Templates()), ".html")
	engine.AddFunc("date", formatDate)
	engine.AddFunc("picture", pictureURL)
	return engine
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func pictureURL(name string) string {
	if name == "" {
		name = models.DefaultImageFile
	}
	return picturesURL + url.PathEscape(name)
}
