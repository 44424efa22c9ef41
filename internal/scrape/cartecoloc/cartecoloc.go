// Package cartecoloc scrapes flatshare listings from La Carte des Colocs.
// Every card on the platform is a room in a shared flat.
package cartecoloc

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape/types"
	"locascan-engine/internal/scrape/util"
)

const (
	sourceName = "carte_coloc"
	baseURL    = "https://www.lacartedescolocs.fr"
	searchPath = "/annonces"
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
// visited URLs, so refetching the same search URL on a retry needs both a
// new collector and AllowURLRevisit.
func (s *Scraper) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.AllowedDomains(util.Hostname(s.site)),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.cfg.Timeout)
	return c
}

// searchURL builds the platform's query string. The site only filters on
// city and budget; everything else is filtered after normalization.
func (s *Scraper) searchURL(criteria domain.SearchCriteria) string {
	params := url.Values{}
	params.Set("ville", strings.TrimSpace(criteria.City))
	if criteria.PriceMax != nil {
		params.Set("prix_max", strconv.Itoa(int(*criteria.PriceMax)))
	}
	return s.site + searchPath + "?" + params.Encode()
}

func (s *Scraper) FetchListings(ctx context.Context, criteria domain.SearchCriteria) ([]types.Fragment, error) {
	target := s.searchURL(criteria)

	fragments := make([]types.Fragment, 0)
	err := util.Retry(ctx, "carte_coloc search", s.cfg.RetryAttempts, s.cfg.RetryBaseDelay, func() error {
		if s.cfg.Limiter != nil {
			if err := s.cfg.Limiter.WaitURL(ctx, target); err != nil {
				return err
			}
		}
		frags, err := s.fetchPage(target)
		if err != nil {
			return err
		}
		fragments = frags
		return nil
	})
	if err != nil {
		return nil, &types.FetchError{Source: sourceName, URL: target, Err: err}
	}

	s.log.Debug("fetched result page", "fragments", len(fragments))
	return fragments, nil
}

// fetchPage runs one search request on its own collector.
func (s *Scraper) fetchPage(target string) ([]types.Fragment, error) {
	var fragments []types.Fragment
	var fetchErr error

	c := s.newCollector()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
	})
	c.OnResponse(func(r *colly.Response) {
		frags, err := cardFragments(r.Body)
		if err != nil {
			fetchErr = fmt.Errorf("parse result page: %w", err)
			return
		}
		fragments = frags
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(target); err != nil {
		return nil, err
	}
	c.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return fragments, nil
}

// cardFragments extracts one fragment per annonce card, falling back to bare
// <article> elements when the specific class is missing.
func cardFragments(body []byte) ([]types.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	cards := doc.Find("div.annonce")
	if cards.Length() == 0 {
		cards = doc.Find("article")
	}

	fragments := make([]types.Fragment, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		html, err := goquery.OuterHtml(card)
		if err != nil {
			return
		}
		fragments = append(fragments, types.Fragment{HTML: html})
	})
	return fragments, nil
}

func (s *Scraper) ParseFragment(f types.Fragment) (*domain.PartialListing, error) {
	if f.HTML == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.HTML))
	if err != nil {
		return nil, &types.ParseError{Source: sourceName, Reason: err.Error()}
	}

	href, ok := doc.Find("a[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, nil
	}
	link := util.AbsoluteURL(s.site, href)

	title := util.CleanText(doc.Find("h2").First().Text())
	if title == "" {
		title = util.CleanText(doc.Find("h3").First().Text())
	}
	if title == "" {
		title = util.CleanText(doc.Find("a[href]").First().Text())
	}

	cardText := util.CleanText(doc.Text())

	priceText := util.CleanText(doc.Find(".prix, .price").First().Text())
	if priceText == "" {
		priceText = cardText
	}

	room := "room"
	p := &domain.PartialListing{
		SourceID:     sourceIDFromURL(link),
		SourceURL:    link,
		Title:        title,
		Price:        util.ParsePrice(priceText),
		Surface:      util.ParseSurface(cardText),
		Rooms:        util.ParseRooms(cardText),
		PropertyType: &room,
	}

	if city := util.CleanText(doc.Find(".ville, .location").First().Text()); city != "" {
		p.City = &city
	}
	if pc := util.ParsePostalCode(cardText); pc != nil {
		p.PostalCode = pc
	}
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
		if img := util.AbsoluteURL(s.site, src); img != "" {
			p.Images = append(p.Images, img)
		}
	}
	if desc := util.CleanText(doc.Find("p, .description").First().Text()); desc != "" {
		p.Description = &desc
	}

	if p.SourceID == "" {
		return nil, &types.ParseError{Source: sourceName, Reason: "no listing id in card link"}
	}
	return p, nil
}

// sourceIDFromURL takes the last non-empty path segment of the listing link.
func sourceIDFromURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
