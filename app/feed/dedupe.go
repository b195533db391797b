package feed

// Dedupe collapses items that describe the same story (same dedup key)
// into the first-seen instance. Single pass, input order preserved.
func Dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	unique := make([]Item, 0, len(items))

	for _, item := range items {
		key := DedupKey(item.Title, item.Source, item.Link)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, item)
	}

	return unique
}

// DedupeArticles applies the same first-seen-wins collapse to articles.
func DedupeArticles(articles []Article) []Article {
	seen := make(map[string]struct{}, len(articles))
	unique := make([]Article, 0, len(articles))

	for _, article := range articles {
		key := DedupKey(article.Title, article.Source, article.Link)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, article)
	}

	return unique
}
