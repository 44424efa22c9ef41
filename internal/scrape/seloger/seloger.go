// Package seloger scrapes rental listings from SeLoger. Result pages are
// rendered client-side, so fetching drives a headless Chrome session through
// chromedp and hands card outer-HTML back as fragments.
package seloger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape/types"
	"locascan-engine/internal/scrape/util"
)

const (
	sourceName      = "seloger"
	baseURL         = "https://www.seloger.com"
	autocompleteURL = "https://www.seloger.com/search-mfe-bff/autocomplete"
	cardSelector    = `[id^="classified-card-"]`

	cardWait    = 8 * time.Second
	settleDelay = 2 * time.Second
)

type Scraper struct {
	cfg          types.ClientConfig
	client       *http.Client
	chromeBin    string
	autocomplete string
	render       func(ctx context.Context, target string) ([]string, error)
	log          *slog.Logger
}

func New(cfg types.ClientConfig, chromeBin string, log *slog.Logger) *Scraper {
	cfg = cfg.WithDefaults()
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s := &Scraper{
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.Timeout},
		chromeBin:    chromeBin,
		autocomplete: autocompleteURL,
		log:          log.With("source", sourceName),
	}
	s.render = s.renderCards
	return s
}

func (s *Scraper) Name() string { return sourceName }

// resolvePlace asks the autocomplete endpoint for the site's internal place
// token for a city. Any failure here means the search cannot be scoped, so
// the caller treats it as an empty result rather than an error.
func (s *Scraper) resolvePlace(ctx context.Context, city string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"query": city,
		"types": []string{"city"},
		"limit": 1,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.autocomplete, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept-Language", s.cfg.AcceptLanguage)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("autocomplete status %d", resp.StatusCode)
	}

	var decoded struct {
		Suggestions []struct {
			ID    string `json:"id"`
			Value string `json:"value"`
		} `json:"suggestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if len(decoded.Suggestions) == 0 {
		return "", fmt.Errorf("no suggestion for %q", city)
	}
	return decoded.Suggestions[0].ID, nil
}

func (s *Scraper) searchURL(place string, criteria domain.SearchCriteria) string {
	u := baseURL + "/list.htm?projects=1&types=1,2&natures=1&places=[{" + place + "}]"
	if criteria.PriceMax != nil {
		lo := 0
		if criteria.PriceMin != nil {
			lo = int(*criteria.PriceMin)
		}
		u += fmt.Sprintf("&price=%d/%d", lo, int(*criteria.PriceMax))
	}
	if criteria.SurfaceMin != nil {
		u += "&surface=" + strconv.Itoa(int(*criteria.SurfaceMin)) + "/NaN"
	}
	if criteria.RoomsMin != nil {
		u += "&rooms=" + strconv.Itoa(*criteria.RoomsMin)
	}
	return u
}

func (s *Scraper) FetchListings(ctx context.Context, criteria domain.SearchCriteria) ([]types.Fragment, error) {
	place, err := s.resolvePlace(ctx, strings.TrimSpace(criteria.City))
	if err != nil {
		s.log.Warn("place lookup failed, treating as empty result", "city", criteria.City, "error", err)
		return []types.Fragment{}, nil
	}

	target := s.searchURL(place, criteria)

	var cards []string
	err = util.Retry(ctx, "seloger search", s.cfg.RetryAttempts, s.cfg.RetryBaseDelay, func() error {
		if s.cfg.Limiter != nil {
			if err := s.cfg.Limiter.WaitURL(ctx, target); err != nil {
				return err
			}
		}
		var err error
		cards, err = s.render(ctx, target)
		return err
	})
	if err != nil {
		return nil, &types.FetchError{Source: sourceName, URL: target, Err: err}
	}

	fragments := make([]types.Fragment, 0, len(cards))
	for _, html := range cards {
		if strings.TrimSpace(html) == "" {
			continue
		}
		fragments = append(fragments, types.Fragment{HTML: html})
	}
	s.log.Debug("rendered result page", "fragments", len(fragments))
	return fragments, nil
}

// renderCards loads the result page in a fresh headless tab and returns the
// outer HTML of every classified card.
func (s *Scraper) renderCards(parent context.Context, target string) ([]string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("lang", "fr-FR"),
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	if s.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(s.chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancel()

	ctx, cancelTimeout := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancelTimeout()

	if err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("render %s: %w", target, err)
	}

	// Cards may legitimately never appear: a zero-result search renders a
	// page without any classified card. Poll briefly, then read whatever the
	// page has.
	waitErr := chromedp.Run(ctx, chromedp.Poll(
		`document.querySelectorAll('[id^="classified-card-"]').length > 0`,
		nil,
		chromedp.WithPollingTimeout(cardWait),
	))
	if err := tolerateNoCards(waitErr); err != nil {
		return nil, fmt.Errorf("render %s: %w", target, err)
	}

	var cards []string
	err := chromedp.Run(ctx,
		chromedp.Sleep(settleDelay),
		chromedp.Evaluate(`
			(function() {
				var out = [];
				var cards = document.querySelectorAll('[id^="classified-card-"]');
				for (var i = 0; i < cards.length; i++) {
					out.push(cards[i].outerHTML);
				}
				return out;
			})()
		`, &cards),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", target, err)
	}
	return cards, nil
}

// tolerateNoCards filters the wait timeout an empty result page produces;
// any other render failure is real.
func tolerateNoCards(err error) error {
	if err == nil || errors.Is(err, chromedp.ErrPollingTimeout) {
		return nil
	}
	return err
}

func (s *Scraper) ParseFragment(f types.Fragment) (*domain.PartialListing, error) {
	if f.HTML == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.HTML))
	if err != nil {
		return nil, &types.ParseError{Source: sourceName, Reason: err.Error()}
	}

	root := doc.Find(cardSelector).First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	id := cardID(root)
	if id == "" {
		return nil, &types.ParseError{Source: sourceName, Reason: "card carries no classified id"}
	}

	link := ""
	if href, ok := root.Find("a[href]").First().Attr("href"); ok {
		link = util.AbsoluteURL(baseURL, href)
	}
	if link == "" {
		link = baseURL + "/annonces/" + id + ".htm"
	}

	cardText := util.CleanText(root.Text())

	p := &domain.PartialListing{
		SourceID:  id,
		SourceURL: link,
	}

	p.Title = util.CleanText(root.Find(`[data-testid="sl.title"]`).First().Text())
	if p.Title == "" {
		p.Title = util.CleanText(root.Find("h2, h3").First().Text())
	}

	priceText := util.CleanText(root.Find(`[data-testid="sl.price-label"], [data-test="sl.price"]`).First().Text())
	if priceText == "" {
		priceText = cardText
	}
	p.Price = util.ParsePrice(priceText)
	p.Surface = util.ParseSurface(cardText)
	p.Rooms = util.ParseRooms(cardText)
	p.Bedrooms = util.ParseBedrooms(cardText)

	addr := util.CleanText(root.Find(`[data-testid="sl.address"]`).First().Text())
	if addr != "" {
		p.Address = &addr
		if city := cityFromAddress(addr); city != "" {
			p.City = &city
		}
	}
	if pc := util.ParsePostalCode(cardText); pc != nil {
		p.PostalCode = pc
	}

	root.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			if img := util.AbsoluteURL(baseURL, src); img != "" && !strings.Contains(img, "data:image") {
				p.Images = append(p.Images, img)
			}
		}
	})

	return p, nil
}

// cardID strips the classified-card- prefix from the card element id.
func cardID(root *goquery.Selection) string {
	id, ok := root.Attr("id")
	if !ok {
		if found, ok := root.Find(cardSelector).First().Attr("id"); ok {
			id = found
		}
	}
	return strings.TrimPrefix(id, "classified-card-")
}

// cityFromAddress takes the city name out of "Quartier, Ville (75011)" style
// address lines.
func cityFromAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.IndexByte(addr, '('); i > 0 {
		addr = strings.TrimSpace(addr[:i])
	}
	if i := strings.LastIndexByte(addr, ','); i >= 0 {
		addr = strings.TrimSpace(addr[i+1:])
	}
	return addr
}

func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
