package marketplace

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// Search paging defaults. The schema also caps page_size at MaxPageSize,
// so the clamp here only matters for in-process callers.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Search algorithms.
const (
	AlgorithmSimple   = "simple"
	AlgorithmFiltered = "filtered"
	AlgorithmLexical  = "lexical"
	AlgorithmOptimal  = "optimal"
)

type searchArgs struct {
	Algorithm         string   `json:"algorithm"`
	Query             string   `json:"query"`
	RatingThreshold   *float64 `json:"rating_threshold"`
	RequiredAmenities []string `json:"required_amenities"`
	RequiredMenuItems []string `json:"required_menu_items"`
	Page              int      `json:"page"`
	PageSize          int      `json:"page_size"`
}

// Business is the search projection of a participant whose profile
// carries a business object.
type Business struct {
	AgentID         string          `json:"agent_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Rating          float64         `json:"rating"`
	AmenityFeatures map[string]bool `json:"amenity_features"`
	MenuFeatures    map[string]any  `json:"menu_features"`
}

// SearchResult is the content of a search_businesses action.
type SearchResult struct {
	Businesses           []Business `json:"businesses"`
	Algorithm            string     `json:"algorithm"`
	TotalPossibleResults int        `json:"total_possible_results"`
	TotalPages           int        `json:"total_pages"`
}

func (m *Marketplace) searchBusinesses(ctx context.Context, agent *types.Participant, params map[string]any, be storage.Backend) (*types.ActionResult, error) {
	var args searchArgs
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}

	var (
		matches []Business
		err     error
	)
	switch args.Algorithm {
	case AlgorithmSimple:
		matches, err = searchSimple(ctx, be)
	case AlgorithmFiltered:
		matches, err = searchFiltered(ctx, be, &args)
	case AlgorithmLexical:
		matches, err = searchLexical(ctx, be, args.Query)
	case AlgorithmOptimal:
		matches, err = searchOptimal(ctx, be, agent)
	default:
		return nil, protocol.NewCallerError("unknown search algorithm %q", args.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	pageRows, totalPages := paginate(matches, args.Page, args.PageSize)
	return &types.ActionResult{Content: SearchResult{
		Businesses:           pageRows,
		Algorithm:            args.Algorithm,
		TotalPossibleResults: len(matches),
		TotalPages:           totalPages,
	}}, nil
}

// searchSimple returns every business, best rated first.
func searchSimple(ctx context.Context, be storage.Backend) ([]Business, error) {
	bs, err := fetchBusinesses(ctx, be, businessPresent())
	if err != nil {
		return nil, err
	}
	sortByRating(bs)
	return bs, nil
}

// searchFiltered compiles the supplied constraints into a predicate tree
// so the storage layer evaluates them, then orders like simple.
func searchFiltered(ctx context.Context, be storage.Backend, args *searchArgs) ([]Business, error) {
	conds := []query.Node{businessPresent()}
	if args.RatingThreshold != nil {
		conds = append(conds, query.Gte("business.rating", *args.RatingThreshold))
	}
	for _, amenity := range args.RequiredAmenities {
		path := "business.amenity_features." + amenity
		if _, err := query.SplitPath(path); err != nil {
			return nil, protocol.NewCallerError("invalid amenity %q", amenity)
		}
		conds = append(conds, query.Eq(path, true))
	}
	for _, item := range args.RequiredMenuItems {
		path := "business.menu_features." + item
		if _, err := query.SplitPath(path); err != nil {
			return nil, protocol.NewCallerError("invalid menu item %q", item)
		}
		conds = append(conds, query.NotNull(path))
	}
	if args.Query != "" {
		conds = append(conds, query.NewOr(
			query.Like("business.name", args.Query),
			query.Like("business.description", args.Query),
		))
	}
	bs, err := fetchBusinesses(ctx, be, query.NewAnd(conds...))
	if err != nil {
		return nil, err
	}
	sortByRating(bs)
	return bs, nil
}

// searchLexical ranks every business by k-shingle similarity between the
// query and the row's searchable text. Scoring is set arithmetic over
// normalized text, so a fixed corpus and query always rank identically.
func searchLexical(ctx context.Context, be storage.Backend, q string) ([]Business, error) {
	bs, err := fetchBusinesses(ctx, be, businessPresent())
	if err != nil {
		return nil, err
	}
	qShingles := shingles(q, shingleSize)
	type scored struct {
		b     Business
		score float64
	}
	ranked := make([]scored, len(bs))
	for i, b := range bs {
		ranked[i] = scored{b: b, score: shingleScore(qShingles, shingles(searchText(b), shingleSize))}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].b.Rating != ranked[j].b.Rating {
			return ranked[i].b.Rating > ranked[j].b.Rating
		}
		return ranked[i].b.AgentID < ranked[j].b.AgentID
	})
	out := make([]Business, len(ranked))
	for i, r := range ranked {
		out[i] = r.b
	}
	return out, nil
}

// searchOptimal returns businesses whose menu covers every menu feature
// on the calling customer's profile. It is the only algorithm that reads
// the caller's row.
func searchOptimal(ctx context.Context, be storage.Backend, agent *types.Participant) ([]Business, error) {
	wanted := customerMenuKeys(agent)
	bs, err := fetchBusinesses(ctx, be, businessPresent())
	if err != nil {
		return nil, err
	}
	out := make([]Business, 0, len(bs))
	for _, b := range bs {
		if menuCovers(b.MenuFeatures, wanted) {
			out = append(out, b)
		}
	}
	sortByRating(out)
	return out, nil
}

// businessPresent matches participants whose profile has a business object.
func businessPresent() query.Node {
	return query.NotNull("business")
}

func fetchBusinesses(ctx context.Context, be storage.Backend, pred query.Node) ([]Business, error) {
	rows, err := be.Participants().Find(ctx, pred, query.Range{})
	if err != nil {
		return nil, fmt.Errorf("listing businesses: %w", err)
	}
	out := make([]Business, 0, len(rows))
	for _, p := range rows {
		if b, ok := projectBusiness(p); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// projectBusiness extracts the business profile from a participant row.
// Rows come off a storage decode, so numbers are float64 and nested
// objects are map[string]any.
func projectBusiness(p *types.Participant) (Business, bool) {
	biz, ok := p.Metadata["business"].(map[string]any)
	if !ok {
		return Business{}, false
	}
	b := Business{AgentID: p.ID}
	b.Name, _ = biz["name"].(string)
	b.Description, _ = biz["description"].(string)
	b.Rating, _ = biz["rating"].(float64)
	if af, ok := biz["amenity_features"].(map[string]any); ok {
		b.AmenityFeatures = make(map[string]bool, len(af))
		for k, v := range af {
			on, _ := v.(bool)
			b.AmenityFeatures[k] = on
		}
	}
	if mf, ok := biz["menu_features"].(map[string]any); ok {
		b.MenuFeatures = mf
	}
	return b, true
}

// searchText builds the row's searchable projection: name, description,
// menu keys, and the names of enabled amenities. Keys are sorted so the
// projection, and with it the shingle set, is stable.
func searchText(b Business) string {
	parts := []string{b.Name, b.Description}
	menu := make([]string, 0, len(b.MenuFeatures))
	for k := range b.MenuFeatures {
		menu = append(menu, k)
	}
	sort.Strings(menu)
	parts = append(parts, menu...)
	amenities := make([]string, 0, len(b.AmenityFeatures))
	for k, on := range b.AmenityFeatures {
		if on {
			amenities = append(amenities, k)
		}
	}
	sort.Strings(amenities)
	parts = append(parts, amenities...)
	return strings.Join(parts, " ")
}

// customerMenuKeys lists the menu features on the agent's customer
// profile. An agent without one wants nothing, and every business covers
// the empty set.
func customerMenuKeys(agent *types.Participant) []string {
	cust, ok := agent.Metadata["customer"].(map[string]any)
	if !ok {
		return nil
	}
	mf, ok := cust["menu_features"].(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(mf))
	for k := range mf {
		keys = append(keys, k)
	}
	return keys
}

func menuCovers(menu map[string]any, wanted []string) bool {
	for _, k := range wanted {
		if _, ok := menu[k]; !ok {
			return false
		}
	}
	return true
}

// sortByRating orders rating descending, then agent id ascending so
// paging is stable across calls.
func sortByRating(bs []Business) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Rating == bs[j].Rating {
			return bs[i].AgentID < bs[j].AgentID
		}
		return bs[i].Rating > bs[j].Rating
	})
}

// paginate slices one 1-based page out of the full result set and
// reports the page count.
func paginate(all []Business, page, pageSize int) ([]Business, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	totalPages := (len(all) + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []Business{}, totalPages
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], totalPages
}
