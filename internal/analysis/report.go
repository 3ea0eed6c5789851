package analysis

import (
	"context"
	"time"

	"github.com/rawblock/txflow-engine/internal/heuristics"
	"github.com/rawblock/txflow-engine/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Report is the combined view of a wallet served by the dashboard
type Report struct {
	Address      string                       `json:"address"`
	Clusters     []models.Cluster             `json:"clusters"`
	Associations []models.AssociationScore    `json:"associations"` // above the reporting threshold
	Sources      []models.FundingSource       `json:"fundingSources"`
	Provenance   heuristics.ProvenanceSummary `json:"provenance"`
	Patterns     []models.ActivityPattern     `json:"patterns"`
	Entity       []string                     `json:"entity"` // wallets linked to the subject through shared clusters
	EntitySize   int                          `json:"entitySize"`
	Entities     int                          `json:"entities"` // distinct entities across the wallet's clusters
	GeneratedAt  time.Time                    `json:"generatedAt"`
}

// Report runs clustering, tracing and pattern detection for the wallet
// concurrently. The first failure cancels the rest.
func (s *Service) Report(ctx context.Context, addr, userID string, depth int) (*Report, error) {
	if err := validateAddress(addr); err != nil {
		return nil, err
	}

	r := &Report{Address: addr, GeneratedAt: s.now().UTC()}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		clusters, err := s.ClusterTransactions(gctx, addr, ClusterOptions{})
		if err != nil {
			return err
		}
		r.Clusters = clusters
		scores := s.engine(s.cfg).Associations(addr, clusters)
		r.Associations = heuristics.FilterAssociations(scores, s.cfg.Association.ReportingThreshold)
		entities := heuristics.BuildEntityGraph(clusters)
		r.Entity = entities.Members(addr)
		r.EntitySize = entities.Size(addr)
		r.Entities = entities.TotalEntities()
		return nil
	})
	g.Go(func() error {
		sources, err := s.TraceFundOrigins(gctx, addr, userID, depth)
		if err != nil {
			return err
		}
		r.Sources = sources
		r.Provenance = heuristics.SummarizeProvenance(addr, sources)
		return nil
	})
	g.Go(func() error {
		patterns, err := s.AnalyzeActivityPatterns(gctx, addr)
		if err != nil {
			return err
		}
		r.Patterns = patterns
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}
