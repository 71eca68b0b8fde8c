package store

import (
	"math/rand"

	"github.com/google/uuid"
)

var (
	nameAdjectives = []string{"Calm", "Brisk", "Bright", "Mellow", "Nimble", "Quiet", "Rapid", "Sage", "Sunny", "Witty"}
	nameAnimals    = []string{"Otter", "Lynx", "Fox", "Sparrow", "Panda", "Whale", "Hawk", "Koala", "Tiger", "Zebra"}
)

// NewRandomUser builds a fresh identity with a generated id and a display name
// like "Brisk Otter".
func NewRandomUser() User {
	return User{
		ID:   uuid.NewString(),
		Name: nameAdjectives[rand.Intn(len(nameAdjectives))] + " " + nameAnimals[rand.Intn(len(nameAnimals))],
	}
}
