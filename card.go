/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/Seednode/bingo/games/bingo"
)

var (
	errCardFormat    = errors.New("invalid card format")
	errCardRange     = errors.New("numbers must be between 1 and 90")
	errCardDuplicate = errors.New("duplicate numbers in card")
)

// cardErrorMessage is the text shown to players for a rejected card.
func cardErrorMessage(err error) string {
	switch {
	case errors.Is(err, errCardRange):
		return "Numbers must be between 1 and 90"
	case errors.Is(err, errCardDuplicate):
		return "Duplicate numbers in card"
	default:
		return "Invalid card format"
	}
}

// parseCard checks a submitted card row by row: each row must be an array
// of five numbers, each a whole number in 1..90, and no number may appear
// twice anywhere on the card.
func parseCard(raw json.RawMessage) (bingo.Card, error) {
	var card bingo.Card

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil || len(rows) != bingo.CardSize {
		return card, errCardFormat
	}

	for r, rawRow := range rows {
		var cells []json.RawMessage
		if err := json.Unmarshal(rawRow, &cells); err != nil || len(cells) != bingo.CardSize {
			return card, errCardFormat
		}

		for c, rawCell := range cells {
			n, ok := cardNumber(rawCell)
			if !ok {
				return card, errCardRange
			}
			card[r][c] = n
		}
	}

	var seen [bingo.MaxNumber + 1]bool
	for r := range bingo.CardSize {
		for c := range bingo.CardSize {
			n := card[r][c]
			if seen[n] {
				return card, errCardDuplicate
			}
			seen[n] = true
		}
	}

	return card, nil
}

func cardNumber(raw json.RawMessage) (int, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}

	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < 1 || f > bingo.MaxNumber {
		return 0, false
	}

	return int(f), true
}
