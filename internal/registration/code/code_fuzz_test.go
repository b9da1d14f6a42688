package code

import (
	"bytes"
	"context"
	"testing"

	dErrors "entrypass/pkg/domain-errors"
)

// FuzzDraw feeds arbitrary entropy to the generator; every completed draw
// must be a valid code.
func FuzzDraw(f *testing.F) {
	f.Add([]byte{0, 0, 0, 0, 0, 0})
	f.Add([]byte{255, 255, 255, 255, 255, 255})
	f.Add([]byte("K4P1Z9"))

	f.Fuzz(func(t *testing.T, entropy []byte) {
		if len(entropy) < pairs*2 {
			t.Skip()
		}
		g := New(&fakeLookup{}, WithRandom(bytes.NewReader(entropy)), WithMaxDraws(1))
		got, err := g.Generate(context.Background())
		if err != nil {
			// too many rejected bytes to fill a code
			if !dErrors.HasCode(err, dErrors.CodeInternal) {
				t.Fatalf("generate: %v", err)
			}
			return
		}
		if !Valid(got) {
			t.Fatalf("%q is not a valid code", got)
		}
	})
}
