package collection

// BuiltinSchemas are the managers shipped with the site admin console.
func BuiltinSchemas() []Schema {
	return []Schema{
		{
			Key:        "academic_partners",
			Title:      "Academic partners",
			AllowAsset: true,
			Fields: []Field{
				{Name: "name", Type: FieldString, Required: true},
				{Name: "description", Type: FieldText},
				{Name: "website", Type: FieldURL},
			},
		},
		{
			Key:   "grant_progress",
			Title: "Grant progress",
			Fields: []Field{
				{Name: "title", Type: FieldString, Required: true},
				{Name: "description", Type: FieldText},
				{Name: "date_label", Type: FieldString},
				{Name: "completed", Type: FieldBool},
			},
		},
		{
			Key:        "team_members",
			Title:      "Team members",
			AllowAsset: true,
			Fields: []Field{
				{Name: "name", Type: FieldString, Required: true},
				{Name: "title", Type: FieldString, Required: true},
				{Name: "bio", Type: FieldText},
				{Name: "linkedin_url", Type: FieldURL},
				{Name: "is_advisor", Type: FieldBool},
			},
		},
		{
			Key:        "how_it_works",
			Title:      "How it works",
			AllowAsset: true,
			Fields: []Field{
				{Name: "title", Type: FieldString, Required: true},
				{Name: "description", Type: FieldText, Required: true},
				{Name: "icon", Type: FieldString},
			},
		},
		{
			Key:        "care_solutions",
			Title:      "Care solutions showcase",
			AllowAsset: true,
			Fields: []Field{
				{Name: "title", Type: FieldString, Required: true},
				{Name: "description", Type: FieldText},
				{Name: "cta_label", Type: FieldString},
				{Name: "cta_url", Type: FieldURL},
				{Name: "patients_served", Type: FieldInt},
			},
		},
		{
			Key:   "comparison_rows",
			Title: "Comparison table",
			Fields: []Field{
				{Name: "feature", Type: FieldString, Required: true},
				{Name: "ours", Type: FieldBool},
				{Name: "traditional", Type: FieldBool},
				{Name: "note", Type: FieldText},
			},
		},
	}
}
