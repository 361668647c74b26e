package storage

import "fmt"

// FallbackCategory is assigned when classification fails or returns an
// unparseable response. It is seeded by the initial migration and must not
// be deleted.
const FallbackCategory = "other"

// ListCategories returns the admin-managed classification set, fallback last.
func (s *Store) ListCategories() ([]Category, error) {
	rows, err := s.db.Query(`
		SELECT name, description FROM categories
		ORDER BY CASE WHEN name = ? THEN 1 ELSE 0 END, name ASC`, FallbackCategory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Name, &c.Description); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// UpsertCategory creates or updates a category entry.
func (s *Store) UpsertCategory(c Category) error {
	_, err := s.db.Exec(`
		INSERT INTO categories (name, description) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET description = excluded.description`,
		c.Name, c.Description)
	return err
}

// DeleteCategory removes a category. The fallback category is protected.
func (s *Store) DeleteCategory(name string) error {
	if name == FallbackCategory {
		return fmt.Errorf("category %q is the classification fallback and cannot be deleted", name)
	}
	res, err := s.db.Exec(`DELETE FROM categories WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return requireRow(res)
}
