package parking

// DefaultClusterTolerance is the maximum degree distance for a spot to join
// an existing cluster. 0.01 degrees is roughly 1.1 km at the equator.
const DefaultClusterTolerance = 0.01

// ProximityClusterer groups spot coordinates into clusters with running
// centroids using a single greedy pass. Output is deterministic for a fixed
// input order; complexity is O(n*k) for n spots and k clusters.
type ProximityClusterer struct {
	tolerance float64
	clock     Clock
}

// NewProximityClusterer creates a clusterer with the given degree tolerance.
// A tolerance <= 0 falls back to DefaultClusterTolerance.
func NewProximityClusterer(tolerance float64, clock Clock) *ProximityClusterer {
	if tolerance <= 0 {
		tolerance = DefaultClusterTolerance
	}
	if clock == nil {
		clock = SystemClock
	}
	return &ProximityClusterer{tolerance: tolerance, clock: clock}
}

// Tolerance returns the configured degree tolerance.
func (c *ProximityClusterer) Tolerance() float64 { return c.tolerance }

// Cluster assigns every point to exactly one group. Each point joins the
// FIRST cluster, in cluster creation order, whose current centroid lies
// within the tolerance; otherwise it seeds a new cluster at its own
// coordinate. The first-match rule (not nearest-match) is load-bearing for
// output compatibility and is pinned by tests.
//
// Centroids are maintained as an incremental mean rather than re-averaged
// from scratch: new = (old*(n-1) + p) / n with n the post-assignment count.
func (c *ProximityClusterer) Cluster(points []SpotPoint) []SpotGroup {
	if len(points) == 0 {
		return nil
	}

	type cluster struct {
		center  Coordinate
		members []string
	}

	var clusters []*cluster

	for _, p := range points {
		var target *cluster
		for _, cl := range clusters {
			if cl.center.Distance(p.Coord) <= c.tolerance {
				target = cl
				break
			}
		}

		if target == nil {
			clusters = append(clusters, &cluster{
				center:  p.Coord,
				members: []string{p.SpotID},
			})
			continue
		}

		target.members = append(target.members, p.SpotID)
		n := float64(len(target.members))
		target.center.Latitude = (target.center.Latitude*(n-1) + p.Coord.Latitude) / n
		target.center.Longitude = (target.center.Longitude*(n-1) + p.Coord.Longitude) / n
	}

	now := c.clock.Now().UTC()
	groups := make([]SpotGroup, 0, len(clusters))
	for _, cl := range clusters {
		groups = append(groups, SpotGroup{
			GroupID:     GroupID(cl.center),
			Center:      cl.center,
			Members:     cl.members,
			LastUpdated: now,
		})
	}
	return groups
}
