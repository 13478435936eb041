package settlement

import (
	"fmt"
	"strconv"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/valyala/fastjson"
)

// outputSegment is the index of the output builtin segment in the layout segment order
// (program, execution, output, ...).
const outputSegment = 2

// ProofParser extracts the program output from a proof artifact.
type ProofParser interface {
	ParseOutput(proof string) ([]*felt.Felt, error)
}

// StarkProofParser reads Stone/Atlantic JSON proofs. The program output is the tail of
// the main public memory page, sized by the output segment bounds.
type StarkProofParser struct {
	pool fastjson.ParserPool
}

var _ ProofParser = (*StarkProofParser)(nil)

func NewStarkProofParser() *StarkProofParser {
	return &StarkProofParser{}
}

func (p *StarkProofParser) ParseOutput(proof string) ([]*felt.Felt, error) {
	parser := p.pool.Get()
	defer p.pool.Put(parser)

	v, err := parser.Parse(proof)
	if err != nil {
		return nil, fmt.Errorf("%w: parse proof json: %v", ErrDecode, err)
	}
	pub := v.Get("public_input")
	if pub == nil {
		return nil, fmt.Errorf("%w: proof has no public_input", ErrDecode)
	}

	begin, stop, err := outputBounds(pub)
	if err != nil {
		return nil, err
	}
	if stop < begin {
		return nil, fmt.Errorf("%w: output segment stop_ptr %d < begin_addr %d", ErrDecode, stop, begin)
	}

	page, err := mainPage(pub)
	if err != nil {
		return nil, err
	}
	if stop-begin > uint64(len(page)) {
		return nil, fmt.Errorf("%w: output length %d exceeds main page length %d", ErrDecode, stop-begin, len(page))
	}
	n := int(stop - begin)

	out := make([]*felt.Felt, 0, n)
	for _, cell := range page[len(page)-n:] {
		f, err := cellValue(cell)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// outputBounds accepts both the raw prover layout (memory_segments.output) and the
// normalized one (segments[2]).
func outputBounds(pub *fastjson.Value) (begin, stop uint64, err error) {
	seg := pub.Get("memory_segments", "output")
	if seg == nil {
		segs := pub.GetArray("segments")
		if len(segs) <= outputSegment {
			return 0, 0, fmt.Errorf("%w: proof has %d segments, output segment missing", ErrDecode, len(segs))
		}
		seg = segs[outputSegment]
	}
	if begin, err = uintField(seg, "begin_addr"); err != nil {
		return 0, 0, err
	}
	if stop, err = uintField(seg, "stop_ptr"); err != nil {
		return 0, 0, err
	}
	return begin, stop, nil
}

// mainPage returns the main page cells: public_memory entries on page 0, or main_page.
func mainPage(pub *fastjson.Value) ([]*fastjson.Value, error) {
	if mem := pub.Get("public_memory"); mem != nil {
		cells, err := mem.Array()
		if err != nil {
			return nil, fmt.Errorf("%w: public_memory: %v", ErrDecode, err)
		}
		page := make([]*fastjson.Value, 0, len(cells))
		for _, c := range cells {
			if c.GetInt("page") == 0 {
				page = append(page, c)
			}
		}
		return page, nil
	}
	page := pub.Get("main_page")
	if page == nil {
		return nil, fmt.Errorf("%w: proof has neither public_memory nor main_page", ErrDecode)
	}
	cells, err := page.Array()
	if err != nil {
		return nil, fmt.Errorf("%w: main_page: %v", ErrDecode, err)
	}
	return cells, nil
}

func uintField(v *fastjson.Value, key string) (uint64, error) {
	f := v.Get(key)
	if f == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrDecode, key)
	}
	switch f.Type() {
	case fastjson.TypeNumber:
		n, err := f.Uint64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
		}
		return n, nil
	case fastjson.TypeString:
		n, err := strconv.ParseUint(string(f.GetStringBytes()), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %s", ErrDecode, key, f.Type())
	}
}

func cellValue(cell *fastjson.Value) (*felt.Felt, error) {
	v := cell.Get("value")
	if v == nil {
		return nil, fmt.Errorf("%w: memory cell without value", ErrDecode)
	}
	switch v.Type() {
	case fastjson.TypeString:
		return ParseFelt(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		// Raw number text, never a float64 round trip.
		return ParseFelt(v.String())
	default:
		return nil, fmt.Errorf("%w: memory cell value has type %s", ErrDecode, v.Type())
	}
}
