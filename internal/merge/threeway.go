package merge

import "sort"

// RegionType classifies one region of a three-way merge walk.
type RegionType int

const (
	RegionContext RegionType = iota
	RegionOurs
	RegionTheirs
	RegionConflict
)

// Region is one classified stretch of a three-way diff3 walk.
type Region struct {
	Type        RegionType
	BaseLines   []string
	OursLines   []string
	TheirsLines []string
}

// ThreeWayDiff walks base/ours/theirs content and returns the
// diff3-style regions between them: unchanged context, a change made
// by only one side, or a conflicting overlapping change.
func ThreeWayDiff(base, ours, theirs []byte) []Region {
	baseLines := splitLines(base)
	oursLines := splitLines(ours)
	theirsLines := splitLines(theirs)

	blocksOurs := editsToBlocks(computeEdits(baseLines, oursLines), baseLines, oursLines)
	blocksTheirs := editsToBlocks(computeEdits(baseLines, theirsLines), baseLines, theirsLines)

	return mergeWalk(baseLines, blocksOurs, blocksTheirs)
}

func mergeWalk(baseLines []string, blocksOurs, blocksTheirs []editBlock) []Region {
	var regions []Region

	sort.Slice(blocksOurs, func(i, j int) bool { return blocksOurs[i].baseStart < blocksOurs[j].baseStart })
	sort.Slice(blocksTheirs, func(i, j int) bool { return blocksTheirs[i].baseStart < blocksTheirs[j].baseStart })

	idxOurs, idxTheirs, basePos := 0, 0, 0

	appendContext := func(from, to int) {
		if from < to {
			regions = append(regions, Region{Type: RegionContext, BaseLines: append([]string(nil), baseLines[from:to]...)})
		}
	}

	for idxOurs < len(blocksOurs) || idxTheirs < len(blocksTheirs) {
		var nextOurs, nextTheirs *editBlock
		if idxOurs < len(blocksOurs) {
			nextOurs = &blocksOurs[idxOurs]
		}
		if idxTheirs < len(blocksTheirs) {
			nextTheirs = &blocksTheirs[idxTheirs]
		}

		switch {
		case nextOurs != nil && nextTheirs != nil && blocksOverlap(*nextOurs, *nextTheirs):
			overlapStart := min(nextOurs.baseStart, nextTheirs.baseStart)
			appendContext(basePos, overlapStart)
			basePos = overlapStart

			overlapEnd := max(nextOurs.baseEnd, nextTheirs.baseEnd)
			idxOurs++
			idxTheirs++

			if linesEqual(nextOurs.newLines, nextTheirs.newLines) && nextOurs.baseStart == nextTheirs.baseStart && nextOurs.baseEnd == nextTheirs.baseEnd {
				regions = append(regions, Region{Type: RegionOurs, BaseLines: append([]string(nil), baseLines[basePos:overlapEnd]...), OursLines: nextOurs.newLines})
			} else {
				regions = append(regions, Region{
					Type:        RegionConflict,
					BaseLines:   append([]string(nil), baseLines[basePos:overlapEnd]...),
					OursLines:   nextOurs.newLines,
					TheirsLines: nextTheirs.newLines,
				})
			}
			basePos = overlapEnd

		case nextOurs != nil && (nextTheirs == nil || nextOurs.baseStart <= nextTheirs.baseStart):
			appendContext(basePos, nextOurs.baseStart)
			regions = append(regions, Region{Type: RegionOurs, BaseLines: append([]string(nil), baseLines[nextOurs.baseStart:nextOurs.baseEnd]...), OursLines: nextOurs.newLines})
			basePos = nextOurs.baseEnd
			idxOurs++

		default:
			appendContext(basePos, nextTheirs.baseStart)
			regions = append(regions, Region{Type: RegionTheirs, BaseLines: append([]string(nil), baseLines[nextTheirs.baseStart:nextTheirs.baseEnd]...), TheirsLines: nextTheirs.newLines})
			basePos = nextTheirs.baseEnd
			idxTheirs++
		}
	}

	appendContext(basePos, len(baseLines))
	return regions
}

func blocksOverlap(a, b editBlock) bool {
	return a.baseStart < b.baseEnd && b.baseStart < a.baseEnd
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasConflict reports whether any region in regions is a conflict.
func HasConflict(regions []Region) bool {
	for _, r := range regions {
		if r.Type == RegionConflict {
			return true
		}
	}
	return false
}

// RenderWithMarkers flattens regions into file content, inserting
// standard three-way conflict markers around conflicting regions.
func RenderWithMarkers(regions []Region, localLabel, incomingLabel string) []byte {
	var out []string
	for _, r := range regions {
		switch r.Type {
		case RegionContext:
			out = append(out, r.BaseLines...)
		case RegionOurs:
			out = append(out, r.OursLines...)
		case RegionTheirs:
			out = append(out, r.TheirsLines...)
		case RegionConflict:
			out = append(out, "<<<<<<< "+localLabel)
			out = append(out, r.OursLines...)
			out = append(out, "|||||||")
			out = append(out, r.BaseLines...)
			out = append(out, "=======")
			out = append(out, r.TheirsLines...)
			out = append(out, ">>>>>>> "+incomingLabel)
		}
	}
	return []byte(joinLines(out))
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out + "\n"
}
