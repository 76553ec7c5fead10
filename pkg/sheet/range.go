package sheet

// NamedRange labels a rectangular cell region on one sheet. The two
// corners may be supplied in any order; Addresses sorts them before
// expanding, so "B2:A1" and "A1:B2" describe the same rectangle.
type NamedRange struct {
	Sheet string
	Start string
	End   string
}

// Addresses expands the rectangle row-major: all of row 1 left to
// right, then row 2, and so on.
func (r NamedRange) Addresses() ([]string, error) {
	c1, r1, err := parseAddr(r.Start)
	if err != nil {
		return nil, err
	}
	c2, r2, err := parseAddr(r.End)
	if err != nil {
		return nil, err
	}
	if c1 > c2 {
		c1, c2 = c2, c1
	}
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	addrs := make([]string, 0, (c2-c1+1)*(r2-r1+1))
	for row := r1; row <= r2; row++ {
		for col := c1; col <= c2; col++ {
			addrs = append(addrs, formatAddr(col, row))
		}
	}
	return addrs, nil
}
