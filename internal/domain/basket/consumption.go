package basket

// Offer is the subset of offer behaviour consumption tracking needs. The
// concrete type lives in the offer package.
type Offer interface {
	OfferID() int64
	IsExclusive() bool
}

// consumption tracks how many units of a line have been used up by offers so
// the same unit is never discounted twice within one pricing pass.
type consumption struct {
	affected      int
	byOffer       map[int64]int
	exclusiveSeen bool
}

// record remembers that an offer has touched the line. Once any exclusive
// offer is recorded, availability for every other offer collapses to the
// line's overall unconsumed quantity.
func (c *consumption) record(off Offer) {
	if c.byOffer == nil {
		c.byOffer = make(map[int64]int)
	}
	if _, ok := c.byOffer[off.OfferID()]; !ok {
		c.byOffer[off.OfferID()] = 0
	}
	if off.IsExclusive() {
		c.exclusiveSeen = true
	}
}

// consume marks up to qty units as used. The overall counter grows by at most
// the line's unconsumed quantity; the per-offer counter by at most the
// quantity still available to that offer.
func (c *consumption) consume(lineQty, qty int, off Offer) {
	if qty < 0 {
		qty = 0
	}
	availableForOffer := c.available(lineQty, off)
	availableAny := lineQty - c.affected

	c.affected += minInt(availableAny, qty)
	if off != nil {
		c.record(off)
		c.byOffer[off.OfferID()] += minInt(availableForOffer, qty)
	}
}

// consumed returns the total consumed quantity, or the quantity consumed by
// one offer when off is non-nil.
func (c *consumption) consumed(off Offer) int {
	if off == nil {
		return c.affected
	}
	return c.byOffer[off.OfferID()]
}

// available returns the quantity still open to the given offer. A nil offer
// is treated as exclusive. Once any exclusive offer has consumed on this
// line, every offer is measured against the overall consumed total; otherwise
// an offer is only blocked by its own prior consumption.
func (c *consumption) available(lineQty int, off Offer) int {
	exclusive := off == nil || off.IsExclusive() || c.exclusiveSeen

	var used int
	if exclusive {
		used = c.affected
	} else {
		used = c.byOffer[off.OfferID()]
	}
	if used > lineQty {
		return 0
	}
	return lineQty - used
}

// clear resets every counter, forgetting all recorded offers.
func (c *consumption) clear() {
	c.affected = 0
	c.byOffer = nil
	c.exclusiveSeen = false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
