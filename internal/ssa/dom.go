package ssa

// reversePostorder returns block indices (into blocks, which is itself
// already ID-ordered) in reverse postorder from block 0, the function's
// entry. Unreachable blocks (never produced by a predecessor edge and
// not block 0) are appended at the end in ID order so every block still
// gets a place in the layout; the renaming walk does not reach them.
func reversePostorder(blocks []*rawBlock) []BlockID {
	n := len(blocks)
	visited := make([]bool, n)
	var post []BlockID

	var visit func(id BlockID)
	visit = func(id BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, s := range blockSuccs(blocks, id) {
			visit(s)
		}
		post = append(post, id)
	}
	visit(0)

	// Reverse post to get RPO.
	rpo := make([]BlockID, len(post), n)
	for i, id := range post {
		rpo[len(post)-1-i] = id
	}

	for id := range blocks {
		if !visited[id] {
			rpo = append(rpo, BlockID(id))
		}
	}
	return rpo
}

func blockSuccs(blocks []*rawBlock, id BlockID) []BlockID {
	rb := blocks[id]
	if rb.branch != nil {
		return []BlockID{rb.branch.target, rb.fallsTo}
	}
	if rb.hasFall {
		return []BlockID{rb.fallsTo}
	}
	return nil
}

// computeDominators implements the Cooper-Harvey-Kennedy "two-finger"
// iterative algorithm: repeatedly intersect each block's processed
// predecessors' idoms until no idom changes, using reverse-postorder
// numbers to make intersect a simple walk-up-until-equal.
func computeDominators(blocks []*rawBlock, rpo []BlockID) {
	rpoNum := make(map[BlockID]int, len(rpo))
	for i, id := range rpo {
		rpoNum[id] = i
	}

	entry := rpo[0]
	blocks[entry].hasIdom = true
	blocks[entry].idom = entry

	changed := true
	for changed {
		changed = false
		for _, id := range rpo[1:] {
			rb := blocks[id]
			var newIdom BlockID
			found := false
			for _, p := range rb.preds {
				if !blocks[p].hasIdom {
					continue
				}
				if !found {
					newIdom = p
					found = true
					continue
				}
				newIdom = intersect(blocks, rpoNum, newIdom, p)
			}
			if !found {
				continue
			}
			if !rb.hasIdom || rb.idom != newIdom {
				rb.idom = newIdom
				rb.hasIdom = true
				changed = true
			}
		}
	}

	for _, id := range rpo {
		rb := blocks[id]
		if rb.hasIdom && rb.idom != id {
			idomBlock := blocks[rb.idom]
			idomBlock.domChildren = append(idomBlock.domChildren, id)
		}
	}
}

func intersect(blocks []*rawBlock, rpoNum map[BlockID]int, a, b BlockID) BlockID {
	for a != b {
		for rpoNum[a] > rpoNum[b] {
			a = blocks[a].idom
		}
		for rpoNum[b] > rpoNum[a] {
			b = blocks[b].idom
		}
	}
	return a
}

// computeDominanceFrontiers implements Cytron et al.'s local+up-the-
// dom-tree algorithm: for every block with 2+ predecessors, walk each
// predecessor up its dominator chain, adding the join block to the
// predecessor itself and to every block above it, up to but not
// including the join's immediate dominator.
func computeDominanceFrontiers(blocks []*rawBlock, rpo []BlockID) {
	for _, id := range rpo {
		rb := blocks[id]
		if len(rb.preds) < 2 {
			continue
		}
		for _, p := range rb.preds {
			runner := p
			for runner != rb.idom {
				df := blocks[runner]
				if !containsBlockID(df.domFrontier, id) {
					df.domFrontier = append(df.domFrontier, id)
				}
				if !df.hasIdom {
					break
				}
				runner = df.idom
			}
		}
	}
}

func containsBlockID(s []BlockID, v BlockID) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
