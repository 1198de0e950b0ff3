package data

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const TimestampLayout = "2006-01-02 15:04:05"

// MonsterColumns is the column order of a monster table.
var MonsterColumns = []string{"Name", "Type", "Level", "Rarity", "Damage", "Health", "Energy", "Sanity", "Timestamp"}

var rarities = []struct {
	name   string
	weight float64
	scale  float64
	sides  int
}{
	{name: "Common", weight: 0.6, scale: 1.0, sides: 6},
	{name: "Rare", weight: 0.3, scale: 1.6, sides: 8},
	{name: "Legendary", weight: 0.1, scale: 2.4, sides: 12},
}

var monsterTypes = []string{"Demonic", "Devilkin", "Dragon", "Elemental", "Fey", "Ghost", "Goblin", "Undead", "Vampire", "Werewolf"}

var monsterNames = []string{"Ashen", "Bleak", "Crimson", "Dread", "Ember", "Frost", "Grim", "Hollow", "Iron", "Murk", "Pale", "Storm", "Thorn", "Vile"}

// Monster is a generated training document.
type Monster struct {
	Name      string  `json:"Name"`
	Type      string  `json:"Type"`
	Level     int     `json:"Level"`
	Rarity    string  `json:"Rarity"`
	Damage    string  `json:"Damage"`
	Health    float64 `json:"Health"`
	Energy    float64 `json:"Energy"`
	Sanity    float64 `json:"Sanity"`
	Timestamp string  `json:"Timestamp"`
}

// Record converts the monster into a table row.
func (m Monster) Record() Record {
	return Record{
		"Name":      m.Name,
		"Type":      m.Type,
		"Level":     m.Level,
		"Rarity":    m.Rarity,
		"Damage":    m.Damage,
		"Health":    m.Health,
		"Energy":    m.Energy,
		"Sanity":    m.Sanity,
		"Timestamp": m.Timestamp,
	}
}

// MonsterGenerator produces random monsters whose stats grow with level and
// rarity. The same seed yields the same sequence.
type MonsterGenerator struct {
	rnd *rand.Rand
	now func() time.Time
}

func NewMonsterGenerator(seed int64) *MonsterGenerator {
	return &MonsterGenerator{
		rnd: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// WithClock replaces the timestamp source.
func (g *MonsterGenerator) WithClock(now func() time.Time) *MonsterGenerator {
	g.now = now
	return g
}

func (g *MonsterGenerator) Next() Monster {
	rarity := rarities[len(rarities)-1]
	roll := g.rnd.Float64()
	for _, r := range rarities {
		if roll < r.weight {
			rarity = r
			break
		}
		roll -= r.weight
	}

	level := 1 + g.rnd.Intn(20)
	monsterType := monsterTypes[g.rnd.Intn(len(monsterTypes))]
	stat := func(base float64) float64 {
		value := base*float64(level)*rarity.scale + g.rnd.Float64()*base*4
		return math.Round(value*100) / 100
	}

	return Monster{
		Name:      fmt.Sprintf("%s %s", monsterNames[g.rnd.Intn(len(monsterNames))], monsterType),
		Type:      monsterType,
		Level:     level,
		Rarity:    rarity.name,
		Damage:    fmt.Sprintf("%dd%d", level/4+1, rarity.sides),
		Health:    stat(5),
		Energy:    stat(3),
		Sanity:    stat(4),
		Timestamp: g.now().Format(TimestampLayout),
	}
}

func (g *MonsterGenerator) Generate(n int) []Monster {
	monsters := make([]Monster, 0, n)
	for i := 0; i < n; i++ {
		monsters = append(monsters, g.Next())
	}
	return monsters
}

// MonstersTable converts monsters into a table with MonsterColumns.
func MonstersTable(monsters []Monster) *Table {
	records := make([]Record, len(monsters))
	for i, monster := range monsters {
		records[i] = monster.Record()
	}
	return &Table{columns: append([]string(nil), MonsterColumns...), records: records}
}
