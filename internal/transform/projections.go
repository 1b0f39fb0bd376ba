package transform

// UserProjection maps remote users onto the users table. The university column is fetched
// but only kept when includeUniversity is set.
func UserProjection(includeUniversity bool) Projection {
	projection := Projection{
		Columns: []string{
			"id", "firstName", "lastName", "age", "gender",
			"address.city", "address.stateCode", "university",
			"company.name", "company.title",
		},
		Rename: map[string]string{
			"id":                "userId",
			"address.city":      "city",
			"address.stateCode": "state",
			"company.name":      "company",
			"company.title":     "title",
		},
	}
	if !includeUniversity {
		projection.Drop = []string{"university"}
	}
	return projection
}

// PostProjection maps remote posts onto the posts table. The owning userId is only carried
// into the reserved column when includeUserID is set.
func PostProjection(includeUserID bool) Projection {
	projection := Projection{
		Columns: []string{
			"id", "title", "body", "tags", "views",
			"reactions.likes", "reactions.dislikes",
		},
		Rename: map[string]string{
			"id":                 "postId",
			"reactions.likes":    "likes",
			"reactions.dislikes": "dislikes",
		},
	}
	if includeUserID {
		projection.Columns = append(projection.Columns, "userId")
	}
	return projection
}
