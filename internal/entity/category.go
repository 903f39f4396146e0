package entity

type Category struct {
	ID       int64       `json:"id"`
	ParentID *int64      `json:"parent_id"`
	Name     string      `json:"name"`
	Slug     string      `json:"slug"`
	Children []*Category `json:"children,omitempty"`
}

// MaxCategoryDepth bounds ancestor walks over the category tree.
const MaxCategoryDepth = 32

// BuildCategoryTree nests a flat category list under its roots.
// Categories whose parent is missing from the list are treated as roots.
func BuildCategoryTree(categories []Category) []*Category {
	nodes := make(map[int64]*Category, len(categories))
	for i := range categories {
		c := categories[i]
		c.Children = nil
		nodes[c.ID] = &c
	}

	var roots []*Category
	for i := range categories {
		node := nodes[categories[i].ID]
		if node.ParentID != nil {
			if parent, ok := nodes[*node.ParentID]; ok && parent.ID != node.ID {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
