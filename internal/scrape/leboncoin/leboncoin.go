// Package leboncoin scrapes rental listings from leboncoin. Result pages
// only carry card summaries, so each card's detail page is fetched in a
// second pass before the pair is handed back as one fragment.
package leboncoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape/types"
	"locascan-engine/internal/scrape/util"
)

const (
	sourceName    = "leboncoin"
	baseURL       = "https://www.leboncoin.fr"
	rentCategory  = "10"
	detailWorkers = 5
)

type Scraper struct {
	cfg  types.ClientConfig
	site string
	log  *slog.Logger
}

func New(cfg types.ClientConfig, log *slog.Logger) *Scraper {
	return &Scraper{
		cfg:  cfg.WithDefaults(),
		site: baseURL,
		log:  log.With("source", sourceName),
	}
}

func (s *Scraper) Name() string { return sourceName }

// newCollector builds a fresh collector for one attempt. Collectors track
// visited URLs, so a retry of the same search or detail URL needs both a new
// collector and AllowURLRevisit.
func (s *Scraper) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.AllowedDomains(util.Hostname(s.site)),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.cfg.Timeout)
	return c
}

// fragment is the wire shape of a leboncoin fragment: the result card plus
// the detail page it links to, fetched during FetchListings so that
// ParseFragment needs no network.
type fragment struct {
	URL    string `json:"url"`
	Card   string `json:"card"`
	Detail string `json:"detail,omitempty"`
}

// searchURL encodes the criteria the way the site's own search form does.
// Ranges travel as slash pairs, e.g. price=0/900.
func (s *Scraper) searchURL(criteria domain.SearchCriteria) string {
	params := url.Values{}
	params.Set("category", rentCategory)
	loc := strings.TrimSpace(criteria.City)
	if criteria.PostalCode != "" {
		loc = loc + "_" + criteria.PostalCode
	}
	params.Set("locations", loc)
	if criteria.PriceMax != nil {
		lo := 0
		if criteria.PriceMin != nil {
			lo = int(*criteria.PriceMin)
		}
		params.Set("price", fmt.Sprintf("%d/%d", lo, int(*criteria.PriceMax)))
	}
	if criteria.SurfaceMin != nil {
		params.Set("square", strconv.Itoa(int(*criteria.SurfaceMin))+"/")
	}
	if criteria.RoomsMin != nil {
		hi := ""
		if criteria.RoomsMax != nil {
			hi = strconv.Itoa(*criteria.RoomsMax)
		}
		params.Set("rooms", strconv.Itoa(*criteria.RoomsMin)+"/"+hi)
	}
	if criteria.Page > 1 {
		params.Set("page", strconv.Itoa(criteria.Page))
	}
	return s.site + "/recherche?" + params.Encode()
}

type card struct {
	html string
	link string
}

func (s *Scraper) FetchListings(ctx context.Context, criteria domain.SearchCriteria) ([]types.Fragment, error) {
	target := s.searchURL(criteria)

	cards, err := s.fetchCards(ctx, target)
	if err != nil {
		return nil, &types.FetchError{Source: sourceName, URL: target, Err: err}
	}
	if len(cards) == 0 {
		return []types.Fragment{}, nil
	}

	details := s.fetchDetails(ctx, cards)

	fragments := make([]types.Fragment, 0, len(cards))
	for _, c := range cards {
		detail, ok := details[c.link]
		if !ok {
			// Detail fetch failed after retries; the card alone is too
			// thin to publish, so the listing is skipped this run.
			continue
		}
		raw, err := json.Marshal(fragment{URL: c.link, Card: c.html, Detail: detail})
		if err != nil {
			continue
		}
		fragments = append(fragments, types.Fragment{JSON: raw})
	}

	s.log.Debug("fetched result page", "cards", len(cards), "fragments", len(fragments))
	return fragments, nil
}

func (s *Scraper) fetchCards(ctx context.Context, target string) ([]card, error) {
	var cards []card
	err := util.Retry(ctx, "leboncoin search", s.cfg.RetryAttempts, s.cfg.RetryBaseDelay, func() error {
		if s.cfg.Limiter != nil {
			if err := s.cfg.Limiter.WaitURL(ctx, target); err != nil {
				return err
			}
		}

		var fetchErr error
		c := s.newCollector()
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
		})
		c.OnResponse(func(r *colly.Response) {
			cards, fetchErr = extractCards(r.Body, s.site)
		})
		c.OnError(func(r *colly.Response, err error) {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
		})

		if err := c.Visit(target); err != nil {
			return err
		}
		c.Wait()
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func extractCards(body []byte, base string) ([]card, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}

	sel := doc.Find(`a[data-qa-id="aditem_container"]`)
	if sel.Length() == 0 {
		sel = doc.Find("div.styles_adCard a[href^='/ad/']")
	}

	cards := make([]card, 0, sel.Length())
	seen := make(map[string]bool)
	sel.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		link := util.AbsoluteURL(base, href)
		if link == "" || seen[link] {
			return
		}
		html, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		seen[link] = true
		cards = append(cards, card{html: html, link: link})
	})
	return cards, nil
}

// fetchDetails pulls the detail page for every card with a bounded worker
// pool. Failures are logged and the card dropped; one bad ad must not sink
// the page.
func (s *Scraper) fetchDetails(ctx context.Context, cards []card) map[string]string {
	jobs := make(chan card)
	var mu sync.Mutex
	details := make(map[string]string, len(cards))

	var wg sync.WaitGroup
	for i := 0; i < detailWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				body, err := s.fetchDetail(ctx, c.link)
				if err != nil {
					s.log.Warn("detail fetch failed", "url", c.link, "error", err)
					continue
				}
				mu.Lock()
				details[c.link] = body
				mu.Unlock()
			}
		}()
	}

	for _, c := range cards {
		select {
		case jobs <- c:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	return details
}

func (s *Scraper) fetchDetail(ctx context.Context, target string) (string, error) {
	var body string
	err := util.Retry(ctx, "leboncoin detail", s.cfg.RetryAttempts, s.cfg.RetryBaseDelay, func() error {
		if s.cfg.Limiter != nil {
			if err := s.cfg.Limiter.WaitURL(ctx, target); err != nil {
				return err
			}
		}

		var fetchErr error
		body = ""
		c := s.newCollector()
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
		})
		c.OnResponse(func(r *colly.Response) {
			body = string(r.Body)
		})
		c.OnError(func(r *colly.Response, err error) {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
		})

		if err := c.Visit(target); err != nil {
			return err
		}
		c.Wait()
		return fetchErr
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

func (s *Scraper) ParseFragment(f types.Fragment) (*domain.PartialListing, error) {
	if len(f.JSON) == 0 {
		return nil, nil
	}
	var frag fragment
	if err := json.Unmarshal(f.JSON, &frag); err != nil {
		return nil, &types.ParseError{Source: sourceName, Reason: err.Error()}
	}
	if frag.URL == "" || frag.Card == "" {
		return nil, nil
	}

	cardDoc, err := goquery.NewDocumentFromReader(strings.NewReader(frag.Card))
	if err != nil {
		return nil, &types.ParseError{Source: sourceName, Reason: err.Error()}
	}

	p := &domain.PartialListing{
		SourceID:  adIDFromURL(frag.URL),
		SourceURL: frag.URL,
	}

	p.Title = util.CleanText(cardDoc.Find(`[data-qa-id="aditem_title"]`).First().Text())
	if p.Title == "" {
		p.Title = util.CleanText(cardDoc.Find("h2, h3").First().Text())
	}

	cardText := util.CleanText(cardDoc.Text())
	priceText := util.CleanText(cardDoc.Find(`[data-qa-id="aditem_price"]`).First().Text())
	if priceText == "" {
		priceText = cardText
	}
	p.Price = util.ParsePrice(priceText)
	p.Surface = util.ParseSurface(cardText)
	p.Rooms = util.ParseRooms(cardText)
	if pc := util.ParsePostalCode(cardText); pc != nil {
		p.PostalCode = pc
	}

	if frag.Detail != "" {
		if detailDoc, err := goquery.NewDocumentFromReader(strings.NewReader(frag.Detail)); err == nil {
			enrichFromDetail(p, detailDoc, s.site)
		}
	}

	if p.SourceID == "" {
		return nil, &types.ParseError{Source: sourceName, Reason: "no ad id in card link"}
	}
	return p, nil
}

// enrichFromDetail fills fields the card cannot carry: description, energy
// class, furnished flag and photos. Card values win when both pages have one.
func enrichFromDetail(p *domain.PartialListing, doc *goquery.Document, base string) {
	if desc := util.CleanText(doc.Find(`[data-qa-id="adview_description_container"]`).First().Text()); desc != "" {
		p.Description = &desc
	}

	detailText := util.CleanText(doc.Text())
	if p.Surface == nil {
		p.Surface = util.ParseSurface(detailText)
	}
	if p.Rooms == nil {
		p.Rooms = util.ParseRooms(detailText)
	}
	p.Bedrooms = util.ParseBedrooms(detailText)

	doc.Find(`[data-qa-id^="criteria_item"]`).Each(func(_ int, s *goquery.Selection) {
		text := util.CleanText(s.Text())
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "meublé"):
			v := !strings.Contains(lower, "non meublé")
			p.Furnished = &v
		case strings.Contains(lower, "classe énergie"):
			if cls := energyClass(text); cls != "" {
				p.EnergyClass = &cls
			}
		}
	})

	doc.Find(`[data-qa-id="slideshow_container"] img[src], picture img[src]`).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if img := util.AbsoluteURL(base, src); img != "" {
				p.Images = append(p.Images, img)
			}
		}
	})
}

// energyClass returns the trailing A-G grade of a "Classe énergie" label.
func energyClass(text string) string {
	fields := strings.Fields(text)
	for i := len(fields) - 1; i >= 0; i-- {
		f := strings.ToUpper(fields[i])
		if len(f) == 1 && f[0] >= 'A' && f[0] <= 'G' {
			return f
		}
	}
	return ""
}

// adIDFromURL extracts the numeric ad id from /ad/<category>/<id> links.
func adIDFromURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		seg := strings.TrimSuffix(segs[i], ".htm")
		if seg == "" {
			continue
		}
		if _, err := strconv.Atoi(seg); err == nil {
			return seg
		}
	}
	return ""
}
