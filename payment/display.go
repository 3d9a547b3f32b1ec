package payment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Instrument names one payment method inside a display block.
type Instrument struct {
	Method string `json:"method"`
}

// Block is one group of instruments on the gateway checkout surface.
type Block struct {
	ID          string       `json:"-"`
	Name        string       `json:"name"`
	Instruments []Instrument `json:"instruments"`
}

// Preferences are the checkout display preferences.
type Preferences struct {
	ShowDefaultBlocks bool `json:"show_default_blocks"`
}

// Display is the checkout display configuration. Blocks are kept in
// presentation order; on the wire they become a keyed object plus a
// "block.<id>" sequence, which is the gateway's format.
type Display struct {
	Blocks      []Block
	Preferences Preferences
}

// DefaultDisplay lists UPI, cards, net banking and wallets, in that order.
func DefaultDisplay() Display {
	return Display{
		Blocks: []Block{
			{ID: "upi", Name: "UPI", Instruments: []Instrument{{Method: "upi"}}},
			{ID: "cards", Name: "Cards", Instruments: []Instrument{{Method: "card"}}},
			{ID: "netbanking", Name: "Netbanking", Instruments: []Instrument{{Method: "netbanking"}}},
			{ID: "wallet", Name: "Wallet", Instruments: []Instrument{{Method: "wallet"}}},
		},
		Preferences: Preferences{ShowDefaultBlocks: true},
	}
}

// BlockNames returns the block names in presentation order.
func (d Display) BlockNames() []string {
	names := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		names[i] = b.Name
	}
	return names
}

// Sequence returns the gateway sequence entries.
func (d Display) Sequence() []string {
	seq := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		seq[i] = "block." + b.ID
	}
	return seq
}

type wireDisplay struct {
	Blocks      map[string]Block `json:"blocks"`
	Sequence    []string         `json:"sequence"`
	Preferences Preferences      `json:"preferences"`
}

func (d Display) MarshalJSON() ([]byte, error) {
	w := wireDisplay{
		Blocks:      make(map[string]Block, len(d.Blocks)),
		Sequence:    d.Sequence(),
		Preferences: d.Preferences,
	}
	for _, b := range d.Blocks {
		w.Blocks[b.ID] = b
	}
	return json.Marshal(w)
}

func (d *Display) UnmarshalJSON(data []byte) error {
	var w wireDisplay
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	blocks := make([]Block, 0, len(w.Sequence))
	for _, entry := range w.Sequence {
		id := strings.TrimPrefix(entry, "block.")
		b, ok := w.Blocks[id]
		if !ok {
			return fmt.Errorf("display sequence references unknown block %q", entry)
		}
		b.ID = id
		blocks = append(blocks, b)
	}
	d.Blocks = blocks
	d.Preferences = w.Preferences
	return nil
}
