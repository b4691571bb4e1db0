package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Amadou-dot/restockd/internal/catalog"
	"github.com/Amadou-dot/restockd/internal/validation"
)

func registerProductRoutes(api *gin.RouterGroup, cfg HandlerConfig) {
	api.GET("/products", func(c *gin.Context) {
		page, err := pageParam(c)
		if err != nil {
			fail(c, "Error fetching products", err)
			return
		}
		res, err := cfg.Catalog.List(c.Request.Context(), page)
		if err != nil {
			fail(c, "Error fetching products", err)
			return
		}
		respond(c, http.StatusOK, "Products retrieved successfully", res)
	})

	api.GET("/products/:id", func(c *gin.Context) {
		p, err := cfg.Catalog.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "Error fetching product", err)
			return
		}
		respond(c, http.StatusOK, "Product retrieved successfully", p)
	})
}

func registerAdminRoutes(admin *gin.RouterGroup, cfg HandlerConfig) {
	admin.GET("", func(c *gin.Context) {
		page, err := pageParam(c)
		if err != nil {
			fail(c, "Error fetching products", err)
			return
		}
		res, err := cfg.Catalog.ListOwned(c.Request.Context(), identity(c).UserID, page)
		if err != nil {
			fail(c, "Error fetching products", err)
			return
		}
		respond(c, http.StatusOK, "Products retrieved successfully", res)
	})

	admin.GET("/products", func(c *gin.Context) {
		page, err := pageParam(c)
		if err != nil {
			fail(c, "Error fetching products", err)
			return
		}
		res, err := cfg.Catalog.List(c.Request.Context(), page)
		if err != nil {
			fail(c, "Error fetching products", err)
			return
		}
		respond(c, http.StatusOK, "Products retrieved successfully", res)
	})

	admin.POST("/products", func(c *gin.Context) {
		in, img, err := productForm(c)
		if err != nil {
			fail(c, "Error creating product", err)
			return
		}
		p, err := cfg.Catalog.Create(c.Request.Context(), identity(c).UserID, in, img)
		if err != nil {
			fail(c, "Error creating product", err)
			return
		}
		respond(c, http.StatusCreated, "Product created successfully", p)
	})

	admin.GET("/products/:id", func(c *gin.Context) {
		p, err := cfg.Catalog.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "Error fetching product", err)
			return
		}
		respond(c, http.StatusOK, "Product retrieved successfully", p)
	})

	admin.PUT("/products/:id", func(c *gin.Context) {
		in, img, err := productForm(c)
		if err != nil {
			fail(c, "Error updating product", err)
			return
		}
		p, err := cfg.Catalog.Update(c.Request.Context(), identity(c).UserID, c.Param("id"), in, img)
		if err != nil {
			fail(c, "Error updating product", err)
			return
		}
		respond(c, http.StatusOK, "Product updated successfully", p)
	})

	admin.DELETE("/products/:id", func(c *gin.Context) {
		if err := cfg.Catalog.Delete(c.Request.Context(), identity(c).UserID, c.Param("id")); err != nil {
			fail(c, "Error deleting product", err)
			return
		}
		respond(c, http.StatusOK, "Product deleted successfully", gin.H{"id": c.Param("id")})
	})
}

// productForm reads product fields from a JSON body or a multipart form.
// Only multipart forms can carry an image.
func productForm(c *gin.Context) (catalog.Input, *catalog.Image, error) {
	var in catalog.Input
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&in); err != nil {
			return in, nil, validation.Errorf("Invalid request body: %v", err)
		}
		return in, nil, nil
	}

	in.Name = c.PostForm("name")
	in.Description = c.PostForm("description")
	if raw := c.PostForm("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return in, nil, validation.Field("price", "price must be a number")
		}
		in.Price = price
	}

	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, validation.Errorf("Invalid form: %v", err)
	}
	f, err := fh.Open()
	if err != nil {
		return in, nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, catalog.MaxImageSize+1))
	if err != nil {
		return in, nil, fmt.Errorf("read upload: %w", err)
	}
	return in, &catalog.Image{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
