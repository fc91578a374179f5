package routes

import (
	"github.com/bestwork/mlm-system/handlers"
	"github.com/bestwork/mlm-system/middleware"
	"github.com/bestwork/mlm-system/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Member    *handlers.MemberHandler
	Placement *handlers.PlacementHandler
	Catalog   *handlers.CatalogHandler
	Cart      *handlers.CartHandler
	Order     *handlers.OrderHandler
	Dashboard *handlers.DashboardHandler
	WebSocket *handlers.WebSocketHandler
}

func SetupRoutes(h Handlers, jwtSecret string) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate([]byte(jwtSecret))
	adminOnly := middleware.Authorize(string(models.RoleAdmin))

	router.Post("/auth/register", h.Auth.Register)
	router.Post("/auth/login", h.Auth.Login)
	router.Post("/auth/forgot-password", h.Auth.ForgotPassword)
	router.Post("/auth/reset-password", h.Auth.ResetPassword)

	router.Route("/products", func(r chi.Router) {
		r.Get("/", h.Catalog.ListProducts)
		r.Get("/{productID}", h.Catalog.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(adminOnly)

			r.Post("/", h.Catalog.CreateProduct)
			r.Put("/{productID}", h.Catalog.UpdateProduct)
			r.Delete("/{productID}", h.Catalog.DeleteProduct)
			r.Post("/{productID}/image", h.Catalog.UploadProductImage)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Post("/auth/change-password", h.Auth.ChangePassword)

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", h.Member.GetProfile)
			r.Put("/", h.Member.UpdateProfile)
			r.Post("/avatar", h.Member.UploadAvatar)
			r.Put("/bank-info", h.Member.UpdateBankInfo)

			r.Route("/beneficiaries", func(r chi.Router) {
				r.Get("/", h.Member.ListBeneficiaries)
				r.Post("/", h.Member.AddBeneficiary)
				r.Delete("/{beneficiaryID}", h.Member.RemoveBeneficiary)
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", h.Member.ListAddresses)
				r.Post("/", h.Member.AddAddress)
				r.Delete("/{addressID}", h.Member.RemoveAddress)
			})
		})

		r.Route("/network", func(r chi.Router) {
			r.Get("/downline", h.Placement.Downline)
			r.Get("/directs", h.Placement.ListDirects)
			r.Get("/next-slot", h.Placement.PreviewSlot)
			r.Get("/pending", h.Placement.ListPending)
			r.Post("/pending/{memberID}/approve", h.Placement.Approve)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Post("/items", h.Cart.SetItem)
			r.Delete("/items/{productID}", h.Cart.RemoveItem)
			r.Delete("/", h.Cart.ClearCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Order.ListOrders)
			r.Post("/checkout", h.Order.Checkout)
			r.Get("/{orderID}", h.Order.GetOrder)
		})

		r.Get("/dashboard", h.Dashboard.GetStats)
		r.Get("/ws", h.WebSocket.ServeWs)
	})

	return router
}
