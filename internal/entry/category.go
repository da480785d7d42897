package entry

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// CategoryCount is the number of question groups in an entry.
	CategoryCount = 10

	// SlotCount is the number of answer slots in every record.
	SlotCount = 46

	// BonusCategory is the single-answer bonus question.
	BonusCategory Category = 10

	// defaultWidth is the answer width of categories 1-9.
	defaultWidth = 5
)

// Category is a 1-based question ordinal.
type Category int

var categoryTitles = [CategoryCount]string{
	"teams to make the playoffs",
	"teams to miss the playoffs",
	"coaches to keep their jobs",
	"general managers to keep their jobs",
	"goaltenders to start 60% of their team's games",
	"top 10 calder voting",
	"top 10 norris voting",
	"top 15 hart voting",
	"roster players to change teams",
	"bonus: 100+ point scorer other than mcdavid",
}

// Valid reports whether c is one of the ten categories.
func (c Category) Valid() bool {
	return c >= 1 && c <= CategoryCount
}

// Width is the number of slots the category owns.
func (c Category) Width() int {
	if c == BonusCategory {
		return 1
	}
	return defaultWidth
}

// Start is the 0-based position of the category's first slot.
func (c Category) Start() int {
	return (int(c) - 1) * defaultWidth
}

// End is one past the category's last slot.
func (c Category) End() int {
	return c.Start() + c.Width()
}

// Title is the default human description used in reports.
func (c Category) Title() string {
	if !c.Valid() {
		return ""
	}
	return categoryTitles[c-1]
}

// String renders the category the way slot names do ("q3").
func (c Category) String() string {
	return "q" + strconv.Itoa(int(c))
}

// Categories returns 1..10 in order.
func Categories() []Category {
	out := make([]Category, 0, CategoryCount)
	for c := Category(1); c <= CategoryCount; c++ {
		out = append(out, c)
	}
	return out
}

// SlotCategory returns the category owning the 0-based slot position.
func SlotCategory(pos int) Category {
	if pos < 0 || pos >= SlotCount {
		return 0
	}
	return Category(pos/defaultWidth + 1)
}

// SlotName returns the column name for a 0-based slot position, e.g. "q2a3".
func SlotName(pos int) string {
	c := SlotCategory(pos)
	if c == 0 {
		return ""
	}
	return fmt.Sprintf("q%da%d", int(c), pos-c.Start()+1)
}

// SlotNames returns all 46 column names in positional order.
func SlotNames() []string {
	names := make([]string, SlotCount)
	for i := range names {
		names[i] = SlotName(i)
	}
	return names
}

// SlotIndex parses a column name such as "q10a1" into its 0-based position.
func SlotIndex(name string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(s, "q") {
		return 0, fmt.Errorf("slot %q: missing q prefix", name)
	}
	qs, as, ok := strings.Cut(s[1:], "a")
	if !ok {
		return 0, fmt.Errorf("slot %q: missing answer number", name)
	}
	q, err := strconv.Atoi(qs)
	if err != nil {
		return 0, fmt.Errorf("slot %q: bad category: %w", name, err)
	}
	a, err := strconv.Atoi(as)
	if err != nil {
		return 0, fmt.Errorf("slot %q: bad answer number: %w", name, err)
	}
	c := Category(q)
	if !c.Valid() {
		return 0, fmt.Errorf("slot %q: category %d out of range", name, q)
	}
	if a < 1 || a > c.Width() {
		return 0, fmt.Errorf("slot %q: answer %d out of range for %s", name, a, c)
	}
	return c.Start() + a - 1, nil
}
