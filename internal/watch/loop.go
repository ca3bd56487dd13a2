package watch

// acyclic reports whether adding candidate to edges keeps the Publisher
// graph acyclic. It walks forward from the candidate's republish key,
// following every edge whose source matches a key already reached, and
// rejects as soon as the walk reaches the candidate's source key (the new
// edge would then close a cycle). The walk always terminates: each key is
// expanded at most once.
func acyclic(edges []Edge, candidate Edge) bool {
	all := make([]Edge, 0, len(edges)+1)
	all = append(all, edges...)
	all = append(all, candidate)

	visited := map[string]bool{}
	pending := []string{candidate.Republish}

	for len(pending) > 0 {
		tail := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if tail == candidate.Source {
			return false
		}
		if visited[tail] {
			continue
		}
		visited[tail] = true
		pending = append(pending, edgesFrom(all, tail)...)
	}
	return true
}

func edgesFrom(edges []Edge, source string) []string {
	var next []string
	for _, e := range edges {
		if e.Source == source {
			next = append(next, e.Republish)
		}
	}
	return next
}
