package data

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func sampleTable() *Table {
	return NewTable(
		[]string{"Level", "Health", "Rarity"},
		[]Record{
			{"Level": 1, "Health": 10.5, "Rarity": "Common"},
			{"Level": 7, "Health": 80.0, "Rarity": "Rare"},
			{"Level": 12, "Health": 300.0, "Rarity": "Legendary", "Extra": "ignored"},
		},
	)
}

func TestTableDropAndSelect(t *testing.T) {
	table := sampleTable()

	features := table.Drop("Rarity")
	if got := features.Columns(); len(got) != 2 || got[0] != "Level" || got[1] != "Health" {
		t.Fatalf("unexpected columns after drop: %v", got)
	}
	if _, ok := features.Row(0)["Rarity"]; ok {
		t.Fatal("expected Rarity to be dropped from rows")
	}
	if !table.HasColumn("Rarity") {
		t.Fatal("drop must not modify the source table")
	}

	selected, err := table.Select("Rarity", "Level")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.Columns()[0] != "Rarity" {
		t.Fatalf("expected selected order to be kept, got %v", selected.Columns())
	}
	if _, err := table.Select("Sanity"); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestTableColumnAndRow(t *testing.T) {
	table := sampleTable()
	if table.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", table.Len())
	}
	if _, ok := table.Row(2)["Extra"]; ok {
		t.Fatal("expected values outside the column set to be dropped")
	}
	labels, err := table.Column("Rarity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels[1] != "Rare" {
		t.Fatalf("unexpected label: %v", labels[1])
	}
	row := table.Row(0)
	row["Level"] = 99
	if table.Row(0)["Level"] != 1 {
		t.Fatal("expected Row to return a copy")
	}
}

func TestTableSplit(t *testing.T) {
	table := MonstersTable(NewMonsterGenerator(1).Generate(100))
	train, test := table.Split(0.25, 7)
	if train.Len() != 75 || test.Len() != 25 {
		t.Fatalf("unexpected split sizes: %d/%d", train.Len(), test.Len())
	}
	again, _ := table.Split(0.25, 7)
	if again.Row(0)["Name"] != train.Row(0)["Name"] {
		t.Fatal("expected split to be deterministic for a seed")
	}
}

func TestFloat(t *testing.T) {
	cases := []struct {
		value any
		want  float64
		ok    bool
	}{
		{value: 3, want: 3, ok: true},
		{value: int64(4), want: 4, ok: true},
		{value: float32(1.5), want: 1.5, ok: true},
		{value: json.Number("2.25"), want: 2.25, ok: true},
		{value: "10", ok: false},
		{value: nil, ok: false},
	}
	for _, tc := range cases {
		got, ok := Float(tc.value)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Float(%v) = %v, %v; want %v, %v", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}

func TestReadCSV(t *testing.T) {
	input := "Level,Health,Energy,Sanity,Rarity\n3,20.5,10,12,Common\n15, 400,200,260,Legendary\n"
	table, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	row := table.Row(1)
	if row["Health"] != 400.0 {
		t.Fatalf("expected numeric cell, got %#v", row["Health"])
	}
	if row["Rarity"] != "Legendary" {
		t.Fatalf("expected string cell, got %#v", row["Rarity"])
	}

	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty csv")
	}
}

func TestMonsterGeneratorDeterministic(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := NewMonsterGenerator(42).WithClock(func() time.Time { return fixed }).Generate(50)
	b := NewMonsterGenerator(42).WithClock(func() time.Time { return fixed }).Generate(50)
	seen := map[string]bool{}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical monsters at %d: %+v vs %+v", i, a[i], b[i])
		}
		if a[i].Level < 1 || a[i].Level > 20 {
			t.Fatalf("level out of range: %d", a[i].Level)
		}
		seen[a[i].Rarity] = true
	}
	for _, rarity := range []string{"Common", "Rare"} {
		if !seen[rarity] {
			t.Fatalf("expected rarity %s in sample", rarity)
		}
	}
	if a[0].Timestamp != "2024-05-01 12:00:00" {
		t.Fatalf("unexpected timestamp: %s", a[0].Timestamp)
	}
}
