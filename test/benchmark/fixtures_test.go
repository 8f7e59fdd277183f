package benchmark

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
)

var vocabulary = strings.Fields(`болт гайка шайба винт саморез шуруп анкер дюбель
	оцинкованный нержавеющий стальной латунный медный пластиковый
	м4 м5 м6 м8 м10 м12 din912 din933 din934 din125 iso4017
	steel brass zinc hex socket flange washer nut bolt screw
	10мм 20мм 30мм 40мм 50мм 60мм 80мм 100мм черный белый`)

func syntheticCatalog(n int, seed int64) []catalog.Entry {
	rng := rand.New(rand.NewSource(seed))
	entries := make([]catalog.Entry, n)
	for i := range entries {
		entries[i] = catalog.Entry{
			ID:               fmt.Sprint(i + 1),
			Code:             fmt.Sprintf("%06d", i),
			Name:             phrase(rng, 3+rng.Intn(4)),
			ManufacturerItem: fmt.Sprintf("%s-%d", vocabulary[rng.Intn(len(vocabulary))], rng.Intn(1000)),
		}
	}
	return entries
}

func syntheticQueries(n int, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	out := make([]string, n)
	for i := range out {
		out[i] = phrase(rng, 2+rng.Intn(3))
	}
	return out
}

func phrase(rng *rand.Rand, words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = vocabulary[rng.Intn(len(vocabulary))]
	}
	return strings.Join(parts, " ")
}
