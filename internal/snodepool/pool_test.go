package snodepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/model"
)

// ============================================================================
// PEER INTERSECTION TESTS
// ============================================================================

func snodeWithIP(ip string) model.Snode {
	return model.Snode{IP: ip, Port: 22021}
}

func TestIntersectSnodes_RequiresPresenceInAllSets(t *testing.T) {
	a := []model.Snode{snodeWithIP("1"), snodeWithIP("2"), snodeWithIP("3")}
	b := []model.Snode{snodeWithIP("2"), snodeWithIP("3"), snodeWithIP("4")}
	c := []model.Snode{snodeWithIP("2"), snodeWithIP("3"), snodeWithIP("5")}

	result := intersectSnodes([][]model.Snode{a, b, c})
	require.Len(t, result, 2)

	ips := map[string]bool{}
	for _, s := range result {
		ips[s.IP] = true
	}
	assert.True(t, ips["2"])
	assert.True(t, ips["3"])
}

func TestIntersectSnodes_EmptyWhenNoAgreement(t *testing.T) {
	a := []model.Snode{snodeWithIP("1")}
	b := []model.Snode{snodeWithIP("2")}
	c := []model.Snode{snodeWithIP("3")}

	result := intersectSnodes([][]model.Snode{a, b, c})
	assert.Empty(t, result)
}

func TestIntersectSnodes_DuplicatesWithinASetDoNotInflateCount(t *testing.T) {
	a := []model.Snode{snodeWithIP("1"), snodeWithIP("1")}
	b := []model.Snode{snodeWithIP("1")}

	result := intersectSnodes([][]model.Snode{a, b})
	require.Len(t, result, 1)
	assert.Equal(t, "1", result[0].IP)
}

// ============================================================================
// RANDOM SAMPLING TESTS
// ============================================================================

func TestRandomSample_ReturnsRequestedCountOfDistinctEntries(t *testing.T) {
	pool := make([]model.Snode, 0, 50)
	for i := 0; i < 50; i++ {
		pool = append(pool, snodeWithIP(string(rune('a' + i))))
	}

	sample, err := randomSample(pool, 10)
	require.NoError(t, err)
	require.Len(t, sample, 10)

	seen := map[string]bool{}
	for _, s := range sample {
		assert.False(t, seen[s.Key()], "randomSample must not repeat an entry")
		seen[s.Key()] = true
	}
}

func TestRandomSample_ClampsToPoolSize(t *testing.T) {
	pool := []model.Snode{snodeWithIP("1"), snodeWithIP("2")}
	sample, err := randomSample(pool, 10)
	require.NoError(t, err)
	assert.Len(t, sample, 2)
}

func TestDecodeTolerant_SkipsMalformedEntries(t *testing.T) {
	valid := wireSnode{IP: "10.0.0.1", Port: 22021, PubkeyEd25519: makeHex32("a"), PubkeyX25519: makeHex32("b")}
	malformed := wireSnode{IP: "10.0.0.2", Port: 22021, PubkeyEd25519: "not-hex", PubkeyX25519: makeHex32("b")}
	missingIP := wireSnode{IP: "", Port: 22021, PubkeyEd25519: makeHex32("a"), PubkeyX25519: makeHex32("b")}

	out := decodeTolerant([]wireSnode{valid, malformed, missingIP})
	require.Len(t, out, 1)
	assert.Equal(t, "10.0.0.1", out[0].IP)
}

func makeHex32(c string) string {
	out := ""
	for i := 0; i < 64; i++ {
		out += c
	}
	return out
}
