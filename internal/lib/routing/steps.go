package routing

// RebaseSteps converts steps whose maneuver happens at the start of their
// distance (the convention of most routing APIs, where the first step is a
// depart) into steps whose maneuver happens at the end. Each maneuver moves
// back one step; the last leg ends with an arrive. A trailing zero-length
// arrive in the input is absorbed.
func RebaseSteps(starts []Step) []Step {
	n := len(starts)
	if n == 0 {
		return nil
	}

	out := make([]Step, 0, n)
	for i := 0; i < n-1; i++ {
		step := starts[i+1]
		step.DistanceMeters = starts[i].DistanceMeters
		out = append(out, step)
	}
	if starts[n-1].Maneuver == ManeuverArrive && n > 1 {
		return out
	}
	return append(out, Step{Maneuver: ManeuverArrive, DistanceMeters: starts[n-1].DistanceMeters})
}
