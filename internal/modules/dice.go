package modules

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxDice  = 100
	maxSides = 1000
	// keeps "roll:<formula>" within the custom id limit
	maxFormulaLen = 90
)

var (
	tokenRegex   = regexp.MustCompile(`(?i)\d*d\d+|\d+|[+\-*/]`)
	diceRegex    = regexp.MustCompile(`(?i)^(\d*)d(\d+)$`)
	formulaRegex = regexp.MustCompile(`(?i)^[\dd+\-*/]+$`)
)

var errFormula = errors.New("can't parse your formula, try something like `2d6+1d4*2-3`")

type term struct {
	value int
	desc  string
	op    string
}

// Roll is an evaluated dice formula.
type Roll struct {
	Formula string
	Detail  string
	Total   int
}

func normalizeFormula(f string) string {
	return strings.ToLower(strings.ReplaceAll(f, " ", ""))
}

func validFormula(v any) error {
	f := normalizeFormula(v.(string))
	switch {
	case f == "":
		return errFormula
	case len(f) > maxFormulaLen:
		return fmt.Errorf("formula is longer than %d characters", maxFormulaLen)
	case !formulaRegex.MatchString(f):
		return errFormula
	}
	return nil
}

// rollFormula evaluates formula left to right, binding * and / tighter than + and -.
func rollFormula(formula string, rng *rand.Rand) (Roll, error) {
	formula = normalizeFormula(formula)
	tokens := tokenRegex.FindAllString(formula, -1)
	if len(tokens) == 0 || strings.Join(tokens, "") != formula {
		return Roll{}, errFormula
	}

	var terms []term
	op := "+"
	expectOperand := true
	for _, tok := range tokens {
		if strings.ContainsAny(tok, "+-*/") {
			if expectOperand && len(terms) == 0 && op == "+" && (tok == "-" || tok == "+") {
				op = tok
				continue
			}
			if expectOperand {
				return Roll{}, errFormula
			}
			op, expectOperand = tok, true
			continue
		}
		if !expectOperand {
			return Roll{}, errFormula
		}
		val, desc, err := evaluateToken(tok, rng)
		if err != nil {
			return Roll{}, fmt.Errorf("failed to evaluate `%s`: %w", tok, err)
		}
		terms = append(terms, term{value: val, desc: desc, op: op})
		expectOperand = false
	}
	if expectOperand {
		return Roll{}, errFormula
	}

	var merged []term
	for _, t := range terms {
		if t.op != "*" && t.op != "/" {
			merged = append(merged, t)
			continue
		}
		prev := &merged[len(merged)-1]
		if t.op == "/" {
			if t.value == 0 {
				return Roll{}, errors.New("can't divide by zero")
			}
			prev.value /= t.value
		} else {
			prev.value *= t.value
		}
		prev.desc = fmt.Sprintf("%s %s %s", prev.desc, t.op, t.desc)
	}

	r := Roll{Formula: formula}
	var detail strings.Builder
	for i, t := range merged {
		switch {
		case i == 0 && t.op == "-":
			detail.WriteString("-")
		case i > 0:
			detail.WriteString(" " + t.op + " ")
		}
		detail.WriteString(t.desc)
		if t.op == "-" {
			r.Total -= t.value
		} else {
			r.Total += t.value
		}
	}
	r.Detail = detail.String()
	return r, nil
}

func evaluateToken(tok string, rng *rand.Rand) (int, string, error) {
	m := diceRegex.FindStringSubmatch(tok)
	if m == nil {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return 0, "", err
		}
		return n, tok, nil
	}

	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	switch {
	case count < 1 || count > maxDice:
		return 0, "", fmt.Errorf("roll between 1 and %d dice", maxDice)
	case sides < 2 || sides > maxSides:
		return 0, "", fmt.Errorf("dice need between 2 and %d sides", maxSides)
	}

	rolls := make([]string, count)
	total := 0
	for i := range rolls {
		n := rng.IntN(sides) + 1
		total += n
		rolls[i] = strconv.Itoa(n)
	}
	return total, fmt.Sprintf("%s[%s]", tok, strings.Join(rolls, ",")), nil
}
