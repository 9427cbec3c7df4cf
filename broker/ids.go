package broker

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/ismaild/vumi/interfaces"
)

// RandomIDGenerator mints delivery tags and generated names from
// crypto/rand, falling back to math/rand if the entropy source fails.
type RandomIDGenerator struct{}

// NewIDGenerator creates the default id generator.
func NewIDGenerator() *RandomIDGenerator {
	return &RandomIDGenerator{}
}

// NextTag returns a random 64-bit delivery tag.
func (g *RandomIDGenerator) NextTag() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return mrand.Uint64()
	}
	return binary.BigEndian.Uint64(b[:])
}

// NewID returns a unique hex id with the given prefix.
func (g *RandomIDGenerator) NewID(prefix string) string {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return fmt.Sprintf("%s%d", prefix, mrand.Int63())
	}
	return prefix + hex.EncodeToString(b[:])
}

var _ interfaces.IDGenerator = (*RandomIDGenerator)(nil)

// SequentialIDGenerator issues deterministic tags and names. Test
// support: scenarios that assert on delivery tags use this instead of
// the random generator.
type SequentialIDGenerator struct {
	mu   sync.Mutex
	next uint64
}

func NewSequentialIDGenerator() *SequentialIDGenerator {
	return &SequentialIDGenerator{next: 1}
}

func (g *SequentialIDGenerator) NextTag() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	tag := g.next
	g.next++
	return tag
}

func (g *SequentialIDGenerator) NewID(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s%d", prefix, g.next)
	g.next++
	return id
}

var _ interfaces.IDGenerator = (*SequentialIDGenerator)(nil)

func init() {
	mrand.Seed(time.Now().UnixNano())
}
