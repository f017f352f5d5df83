package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apierrors "favsync/pkg/errors"
	"favsync/pkg/logger"
	"favsync/pkg/models"
	"favsync/pkg/ratelimit"
)

const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Username  string
	Password  string
	// Limiter paces every request, logins included. Nil means unlimited.
	Limiter ratelimit.Limiter
	// Transport replaces the underlying HTTP transport, mainly for tests.
	Transport Doer
}

// Client talks to the remote collection API.
type Client struct {
	base    *url.URL
	raw     Doer
	doer    Doer
	session *Session
	log     logger.Logger

	username string
	password string
}

// New builds a Client. Requests are sent through, outermost first:
// re-authentication, bearer token, rate limit, logging, fixed headers.
func New(opts Options, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	transport := opts.Transport
	if transport == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		transport = &http.Client{Timeout: timeout}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "favsync/1.0"
	}

	c := &Client{
		base:     base,
		session:  &Session{},
		log:      log.WithField("component", "remote"),
		username: opts.Username,
		password: opts.Password,
	}
	c.raw = Chain(transport,
		WithRateLimit(limiter, c.log),
		WithLogging(c.log),
		WithHeaders(map[string]string{
			"User-Agent": ua,
			"Accept":     "application/json, image/*;q=0.9, */*;q=0.8",
		}),
	)
	c.doer = Chain(c.raw,
		WithReauth(c.relogin, c.log),
		WithToken(c.session),
	)
	return c, nil
}

// Authenticate logs in and keeps the credentials for later re-authentication.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	c.username = username
	c.password = password
	return c.login(ctx)
}

// LoggedIn reports whether a session token is held.
func (c *Client) LoggedIn() bool { return c.session.Token() != "" }

func (c *Client) relogin(ctx context.Context) error {
	if c.username == "" {
		return apierrors.New(apierrors.ErrorTypeAuth, http.StatusUnauthorized, "session expired and no credentials are configured")
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("login", nil), bytes.NewReader(body))
	if err != nil {
		return apierrors.Wrap(apierrors.ErrorTypeUnknown, "build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := c.send(c.raw, req, &out); err != nil {
		return fmt.Errorf("login as %s: %w", c.username, err)
	}
	if out.Token == "" {
		return apierrors.New(apierrors.ErrorTypeAuth, http.StatusUnauthorized, "login returned no token")
	}
	c.session.SetToken(out.Token)
	c.log.InfoWithFields("logged in", map[string]interface{}{"username": c.username})
	return nil
}

type wireEntry struct {
	ID    flexString `json:"id"`
	Title string     `json:"title"`
}

type wireList struct {
	Items   []wireEntry `json:"items"`
	HasNext bool        `json:"has_next"`
}

func (w wireList) page() models.ListPage {
	p := models.ListPage{HasNext: w.HasNext, Entries: make([]models.ListEntry, 0, len(w.Items))}
	for _, e := range w.Items {
		p.Entries = append(p.Entries, models.ListEntry{ID: string(e.ID), Title: e.Title})
	}
	return p
}

// Favorites returns one page (1-based) of the user's favorites.
func (c *Client) Favorites(ctx context.Context, page int) (models.ListPage, error) {
	var out wireList
	q := url.Values{"page": {strconv.Itoa(page)}}
	if err := c.getJSON(ctx, c.endpoint("favorites", q), &out); err != nil {
		return models.ListPage{}, fmt.Errorf("favorites page %d: %w", page, err)
	}
	return out.page(), nil
}

// Search returns one page (1-based) of search results for query.
func (c *Client) Search(ctx context.Context, query string, page int) (models.ListPage, error) {
	var out wireList
	q := url.Values{"q": {query}, "page": {strconv.Itoa(page)}}
	if err := c.getJSON(ctx, c.endpoint("search", q), &out); err != nil {
		return models.ListPage{}, fmt.Errorf("search %q page %d: %w", query, page, err)
	}
	return out.page(), nil
}

type wireItem struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Authors     flexList   `json:"authors"`
	Tags        flexList   `json:"tags"`
	Description string     `json:"description"`
}

// GetItem fetches normalized metadata for one album.
func (c *Client) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var out wireItem
	if err := c.getJSON(ctx, c.endpoint("albums/"+id, nil), &out); err != nil {
		return nil, fmt.Errorf("album %s: %w", id, err)
	}
	item := &models.Item{
		ID:          string(out.ID),
		Title:       strings.TrimSpace(out.Title),
		Authors:     NormalizeAuthors(out.Authors),
		Tags:        normalizeTags(out.Tags),
		Description: strings.TrimSpace(out.Description),
		UpdatedAt:   time.Now(),
	}
	if item.ID == "" {
		item.ID = id
	}
	return item, nil
}

type wireSubUnit struct {
	ID    flexString `json:"id"`
	Title string     `json:"title"`
	Sort  flexString `json:"sort"`
}

// SubUnits lists the chapters of item in remote order.
func (c *Client) SubUnits(ctx context.Context, item models.Item) ([]models.SubUnit, error) {
	var out []wireSubUnit
	if err := c.getJSON(ctx, c.endpoint("albums/"+item.ID+"/chapters", nil), &out); err != nil {
		return nil, fmt.Errorf("chapters of %s: %w", item.ID, err)
	}
	subs := make([]models.SubUnit, 0, len(out))
	for _, s := range out {
		subs = append(subs, models.SubUnit{ID: string(s.ID), Title: s.Title, Sort: string(s.Sort)})
	}
	return subs, nil
}

// Pages lists the images of sub in reading order.
func (c *Client) Pages(ctx context.Context, sub models.SubUnit) ([]models.Page, error) {
	var out []models.Page
	if err := c.getJSON(ctx, c.endpoint("chapters/"+sub.ID+"/images", nil), &out); err != nil {
		return nil, fmt.Errorf("images of chapter %s: %w", sub.ID, err)
	}
	return out, nil
}

// FetchPage downloads the raw bytes of one page. Relative URLs resolve
// against the base URL.
func (c *Client) FetchPage(ctx context.Context, page models.Page) ([]byte, error) {
	ref, err := url.Parse(page.URL)
	if err != nil || page.URL == "" {
		return nil, apierrors.New(apierrors.ErrorTypeParsing, 0, fmt.Sprintf("invalid page url %q", page.URL))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.ErrorTypeUnknown, "build page request", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.ErrorTypeNetwork, "read page body", err)
	}
	return data, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return apierrors.Wrap(apierrors.ErrorTypeUnknown, "build request", err)
	}
	return c.send(c.doer, req, out)
}

func (c *Client) send(d Doer, req *http.Request, out interface{}) error {
	resp, err := c.doWith(d, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierrors.Wrap(apierrors.ErrorTypeNetwork, "read response body", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.log.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.String(),
			"error":        err.Error(),
			"body_preview": preview,
		})
		return apierrors.Wrap(apierrors.ErrorTypeParsing, "decode response", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	return c.doWith(c.doer, req)
}

// doWith sends req and converts transport failures and non-2xx statuses into
// typed errors. The caller owns the returned body.
func (c *Client) doWith(d Doer, req *http.Request) (*http.Response, error) {
	resp, err := d.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var apiErr *apierrors.Error
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, apierrors.Wrap(apierrors.ErrorTypeNetwork, req.Method+" "+req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return nil, apierrors.FromStatus(resp.StatusCode, fmt.Sprintf("%s %s: %s", req.Method, req.URL.Path, msg))
}
