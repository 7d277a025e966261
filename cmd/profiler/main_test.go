package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bsonsplit"
)

func TestParseBytesPerSecond(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "100", want: 100},
		{in: "512k", want: 512 << 10},
		{in: "10MBps", want: 10 << 20},
		{in: "1g/s", want: 1 << 30},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		{in: "fast", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseBytesPerSecond(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunProfile(t *testing.T) {
	t.Parallel()

	for _, source := range []string{sourceFile, sourceHTTP} {
		for _, mode := range []string{"scan", "split", "lookup", "export"} {
			t.Run(source+"/"+mode, func(t *testing.T) {
				t.Parallel()
				cfg := config{
					mode:       mode,
					source:     source,
					products:   40,
					maxImages:  3,
					imageSize:  64,
					categories: 5,
					seed:       7,
					dataURL:    "local",
					iterations: 2,
					duration:   time.Second,
				}
				data, err := makeDataset(t.TempDir(), cfg)
				require.NoError(t, err)
				p, err := bsonsplit.New(bsonsplit.WithSeed(cfg.seed))
				require.NoError(t, err)

				stats, err := runProfile(context.Background(), cfg, p, data)
				require.NoError(t, err)
				assert.Equal(t, 2, stats.ops)
				assert.Positive(t, stats.bytes)
			})
		}
	}
}
