package ggpk

import "fmt"

// EachTable calls fn with the path and content of every FormatTable file,
// in tree order. Decoding rows is up to fn. Iteration stops at the first
// error, which EachTable returns.
func (c *Container) EachTable(fn func(path string, content []byte) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, f := range c.tree.Files() {
		if FormatOf(f.Name) != FormatTable {
			continue
		}
		path := c.tree.Path(f)
		content, err := c.readRecord(f)
		if err != nil {
			return fmt.Errorf("read table %s: %w", path, err)
		}
		if err := fn(path, content); err != nil {
			return err
		}
	}
	return nil
}
