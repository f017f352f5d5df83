package metadata

import (
	"encoding/xml"
	"fmt"
	"strings"

	"favsync/pkg/models"
)

// Page roles of the ComicInfo 2.0 schema.
const (
	PageFrontCover = "FrontCover"
	PageStory      = "Story"
	PageBackCover  = "BackCover"
)

// FormatWebComic is the Format value written for every archive.
const FormatWebComic = "Web Comic"

// ComicInfo is the ComicInfo.xml document stored inside each archive.
type ComicInfo struct {
	XMLName   xml.Name `xml:"ComicInfo"`
	Title     string   `xml:"Title,omitempty"`
	Series    string   `xml:"Series,omitempty"`
	Number    string   `xml:"Number,omitempty"`
	Summary   string   `xml:"Summary,omitempty"`
	Writer    string   `xml:"Writer,omitempty"`
	Tags      string   `xml:"Tags,omitempty"`
	Web       string   `xml:"Web,omitempty"`
	PageCount int      `xml:"PageCount,omitempty"`
	Format    string   `xml:"Format,omitempty"`
	Pages     *Pages   `xml:"Pages,omitempty"`
}

// Pages wraps the per-page entries.
type Pages struct {
	Page []Page `xml:"Page"`
}

// Page describes one image of the archive.
type Page struct {
	Image     int    `xml:"Image,attr"`
	Type      string `xml:"Type,attr,omitempty"`
	ImageSize int64  `xml:"ImageSize,attr,omitempty"`
}

// Role returns the page type of the i-th of n pages: the first page is the
// front cover and the last the back cover. A single page is both.
func Role(i, n int) string {
	switch {
	case n == 1:
		return PageFrontCover + " " + PageBackCover
	case i == 0:
		return PageFrontCover
	case i == n-1:
		return PageBackCover
	default:
		return PageStory
	}
}

// SetPages records one entry per page, in archive order, from their sizes.
func (c *ComicInfo) SetPages(sizes []int64) {
	pages := make([]Page, len(sizes))
	for i, size := range sizes {
		pages[i] = Page{Image: i, Type: Role(i, len(sizes)), ImageSize: size}
	}
	c.Pages = &Pages{Page: pages}
	c.PageCount = len(sizes)
}

// FromItem fills the fields shared by every chapter of item. webFormat, when
// non-empty, is a printf format receiving the item id.
func FromItem(item models.Item, title string, number int, webFormat string) ComicInfo {
	info := ComicInfo{
		Title:   title,
		Series:  item.Title,
		Writer:  strings.Join(item.Authors, ", "),
		Tags:    strings.Join(item.Tags, ", "),
		Summary: item.Description,
		Format:  FormatWebComic,
	}
	if info.Series == "" {
		info.Series = title
	}
	if number < 1 {
		number = 1
	}
	info.Number = fmt.Sprint(number)
	if webFormat != "" && item.ID != "" {
		info.Web = fmt.Sprintf(webFormat, item.ID)
	}
	return info
}

// Marshal renders the document with an XML declaration.
func (c ComicInfo) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ComicInfo: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Parse reads a ComicInfo.xml document.
func Parse(data []byte) (*ComicInfo, error) {
	var info ComicInfo
	if err := xml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ComicInfo: %w", err)
	}
	return &info, nil
}
