// Package docdex maps Go structs onto JSON documents in Redis, Valkey or an
// in-process store, keeping identity handling, polymorphic decoding and
// query building in one typed facade.
//
// A model is any struct; storage aliases and identity come from `docdex`
// struct tags:
//
//	type Employee struct {
//		ID   string `docdex:"_id"`
//		Name string `docdex:"name,required"`
//		Age  int
//	}
//
//	client, err := docdex.New(ctx, docdex.WithMemory())
//	employees, err := docdex.Bind[Employee](client, "employees")
//	saved, err := employees.Save(ctx, &Employee{Name: "Frodo", Age: 50})
//
// Queries are either M literals or expressions over injected field
// references:
//
//	f := employees.F("Age")
//	young, err := employees.Find(ctx, f.Lt(33))
//
// Union collections decode stored documents back into the variant recorded
// by a discriminator field:
//
//	shapes, err := docdex.Bind[Shape](client, "shapes",
//		docdex.Variant[Circle]("circle"),
//		docdex.Variant[Square]("square"))
package docdex
