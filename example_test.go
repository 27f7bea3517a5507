package lexgo_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/lexgo"
)

func Example() {
	ctx := context.Background()

	ix, err := lexgo.Open(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer ix.Close(ctx)

	for i, body := range []string{"red fox", "brown fox", "lazy dog"} {
		err := ix.AddDocument(ctx, lexgo.NewDocument(
			lexgo.KeywordField("id", fmt.Sprint(i)),
			lexgo.TextField("body", body),
		))
		if err != nil {
			log.Fatal(err)
		}
	}
	if err := ix.DeleteTerms(ctx, lexgo.NewTerm("id", "0")); err != nil {
		log.Fatal(err)
	}
	if err := ix.Commit(ctx); err != nil {
		log.Fatal(err)
	}

	var foxes int
	for _, v := range ix.Snapshot() {
		for range v.LiveDocs(lexgo.NewTerm("body", "fox")) {
			foxes++
		}
	}
	fmt.Println("live foxes:", foxes)
	// Output: live foxes: 1
}
