package heuristics

import (
	"testing"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestClassifyCluster(t *testing.T) {
	cfg := DefaultAnomalyConfig()

	tests := []struct {
		name     string
		txs      []models.Transaction
		wantType models.ClusterType
		wantNote string
	}{
		{
			name: "high amount variance",
			txs: []models.Transaction{
				transfer("v1", "S", "A", "1", 0),
				transfer("v2", "B", "S", "1", 3*time.Hour),
				transfer("v3", "S", "C", "1", 4*time.Hour),
				transfer("v4", "D", "S", "100", 9*time.Hour),
			},
			wantType: models.ClusterUnusual,
			wantNote: noteHighVariance,
		},
		{
			name: "metronome timing",
			txs: []models.Transaction{
				transfer("r1", "S", "A", "1", 0),
				transfer("r2", "B", "S", "2", time.Hour),
				transfer("r3", "S", "C", "3", 2*time.Hour),
			},
			wantType: models.ClusterUnusual,
			wantNote: noteRegularTiming,
		},
		{
			name: "no outgoing",
			txs: []models.Transaction{
				transfer("i1", "A", "S", "1", 0),
				transfer("i2", "B", "S", "2", 5*time.Hour),
				transfer("i3", "C", "S", "3", 6*time.Hour),
				transfer("i4", "D", "S", "4", 13*time.Hour),
				transfer("i5", "E", "S", "5", 14*time.Hour),
			},
			wantType: models.ClusterUnusual,
			wantNote: noteNoOutgoing,
		},
		{
			name: "single counterparty concentration",
			txs: []models.Transaction{
				transfer("k1", "S", "A", "1", 0),
				transfer("k2", "A", "S", "2", 5*time.Hour),
				transfer("k3", "S", "A", "3", 6*time.Hour),
				transfer("k4", "S", "B", "4", 13*time.Hour),
			},
			wantType: models.ClusterUnusual,
			wantNote: noteConcentration,
		},
		{
			name: "missing fields skip heuristics",
			txs: []models.Transaction{
				{Signature: "m1", SourceAddress: "S", DestinationAddress: "A"},
				{Signature: "m2", SourceAddress: "B", DestinationAddress: "S"},
				{Signature: "m3", SourceAddress: "S", DestinationAddress: "C"},
			},
			wantType: models.ClusterNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassifyCluster(newCluster(tt.txs, 0.8, "base", baseTime), "S", cfg)
			assert.Equal(t, tt.wantType, c.Type)
			if tt.wantNote != "" {
				assert.Contains(t, c.Description, tt.wantNote)
			} else {
				assert.Equal(t, "base", c.Description)
			}
		})
	}
}

func TestClassifyCluster_WashTradingNeverDowngraded(t *testing.T) {
	var txs []models.Transaction
	for i, amt := range []string{"5", "5", "5", "5", "5", "5", "5"} {
		src, dst := "S", "W"
		if i%2 == 1 {
			src, dst = dst, src
		}
		txs = append(txs, transfer(string(rune('a'+i)), src, dst, amt, time.Duration(i)*time.Hour))
	}

	c := ClassifyCluster(newCluster(txs, 0.8, "", baseTime), "S", DefaultAnomalyConfig())
	assert.Equal(t, models.ClusterSuspicious, c.Type)
	assert.Contains(t, c.Description, noteRegularTiming)
	assert.Contains(t, c.Description, noteWashTrading)
	assert.Contains(t, c.Description, noteConcentration)
}

func TestClassifyCluster_NoteAddedOnce(t *testing.T) {
	txs := []models.Transaction{
		transfer("r1", "S", "A", "1", 0),
		transfer("r2", "B", "S", "2", time.Hour),
		transfer("r3", "S", "C", "3", 2*time.Hour),
	}
	c := ClassifyCluster(newCluster(txs, 0.8, "", baseTime), "S", DefaultAnomalyConfig())
	again := ClassifyCluster(c, "S", DefaultAnomalyConfig())
	assert.Equal(t, c.Description, again.Description)
}
